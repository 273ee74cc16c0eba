package pdfreader

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// decryptPDF 返回可直接交给 ledongthuc/pdf 和 fitz 的明文字节。
// ledongthuc/pdf 只认识 RC4 的 V1/V2，且 40 位密钥下解出的字符串不可靠，
// 所以凡是带 /Encrypt 的文件都交给 pdfcpu 解密（RC4、AES-128、AES-256）。
func decryptPDF(data []byte, password string) (plain []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			plain, err = nil, fmt.Errorf("parse pdf: panic: %v", rec)
		}
	}()

	nativeErr := plainCheck(data)
	if errors.Is(nativeErr, errNotEncrypted) {
		return data, nil
	}

	conf := cryptConfig(password)
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	switch {
	case errors.Is(err, pdfcpu.ErrWrongPassword):
		if password == "" {
			return nil, ErrPasswordRequired
		}
		return nil, ErrDecryptFailed
	case err != nil:
		if nativeErr != nil {
			return nil, fmt.Errorf("parse pdf: %w", nativeErr)
		}
		return nil, fmt.Errorf("parse pdf: %w", err)
	case ctx.E == nil:
		// pdfcpu 能读而 ledongthuc/pdf 不能，交给后者报错
		return data, nil
	}

	var buf bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &buf, cryptConfig(password)); err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) && password == "" {
			return nil, ErrPasswordRequired
		}
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return buf.Bytes(), nil
}

var errNotEncrypted = errors.New("pdf is not encrypted")

// plainCheck 用 ledongthuc/pdf 试读一次：能读且 trailer 没有 /Encrypt 时返回 errNotEncrypted，
// 否则返回它的解析错误（可能为 nil，表示读得动但文件加密）。
func plainCheck(data []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if r.Trailer().Key("Encrypt").IsNull() {
		return errNotEncrypted
	}
	return nil
}

func cryptConfig(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}
