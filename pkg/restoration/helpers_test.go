package restoration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"imrestore/internal/models"
	"imrestore/internal/testimages"
	"imrestore/pkg/metrics"
)

func psnr(t *testing.T, ref, test *models.Image) float64 {
	t.Helper()
	v, err := metrics.PSNR(ref, test, 0)
	require.NoError(t, err)
	return v
}

func psnrRange(t *testing.T, ref, test *models.Image, dataRange float64) float64 {
	t.Helper()
	v, err := metrics.PSNR(ref, test, dataRange)
	require.NoError(t, err)
	return v
}

// noisy adds N(0, sigma^2) noise and clips to [0, 1].
func noisy(im *models.Image, sigma float64, seed uint64) *models.Image {
	return testimages.Clip(testimages.AddGaussianNoise(im, sigma, seed), 0, 1)
}

func ptr[T any](v T) *T { return &v }
