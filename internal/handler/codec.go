package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/validation"
)

const maxBodyBytes = 1 << 20

// readBody reads the request body and runs fn over its top-level object
// fields. Unknown fields are skipped.
func readBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(b) == 0 {
		return validation.New("body", "required")
	}
	if err := jx.DecodeBytes(b).Obj(fn); err != nil {
		if validation.IsValidation(err) {
			return err
		}
		return validation.New("body", "malformed JSON: %s", err)
	}
	return nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, validation.New(field, "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, validation.New(field, "must be a number")
	}
	return v, nil
}

func decodeTime(d *jx.Decoder, field string) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, validation.New(field, "must be an RFC 3339 timestamp")
	}
	return t, nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func fieldStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func fieldStrOmit(e *jx.Encoder, name, v string) {
	if v != "" {
		fieldStr(e, name, v)
	}
}

func fieldDecimal(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	encodeDecimal(e, v)
}

func fieldInt(e *jx.Encoder, name string, v int) {
	e.FieldStart(name)
	e.Int(v)
}

func fieldTime(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	encodeTime(e, t)
}

func fieldTimeOmit(e *jx.Encoder, name string, t *time.Time) {
	if t != nil {
		fieldTime(e, name, *t)
	}
}

// writeJSON encodes a response body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("Write response", zap.Error(err))
	}
}
