package wavelet

import "errors"

var (
	ErrUnknownWavelet = errors.New("wavelet: unknown wavelet")
	ErrInvalidLevel   = errors.New("wavelet: invalid decomposition level")
	ErrLevelTooDeep   = errors.New("wavelet: level exceeds maximum useful decomposition depth")
	ErrMissingSubband = errors.New("wavelet: missing subband")
)
