package pdfreader

import "errors"

var (
	ErrEmptyFile        = errors.New("pdf file is empty")
	ErrPasswordRequired = errors.New("PDF is encrypted but no password was provided")
	ErrDecryptFailed    = errors.New("failed to decrypt PDF with provided password")
)
