package main

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/candleshop/internal/domain/customer"
	"github.com/xenking/candleshop/internal/domain/promotion"
)

const (
	promotionsFile = "promotions.ndjson.gz"
	usersFile      = "users.ndjson.gz"
	ordersFile     = "orders.ndjson.gz"

	maxLineBytes = 1 << 20
)

// export is the parsed content of the three export files.
type export struct {
	promotions []promotion.Record
	users      []customer.User
	orders     []customer.Order
}

// streamNDJSON calls fn with a decoder for every non-empty line of the gzip
// file at path. Errors carry the 1-based line number.
func streamNDJSON(ctx context.Context, path string, fn func(d *jx.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	d := jx.GetDecoder()
	defer jx.PutDecoder(d)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		d.ResetBytes(b)
		if err := fn(d); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func decodeUser(d *jx.Decoder) (customer.User, error) {
	var u customer.User
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "id":
			u.ID, err = d.Str()
		case "email":
			u.Email, err = d.Str()
		case "created_at":
			u.CreatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && u.ID == "" {
		err = errors.New("user without id")
	}
	return u, err
}

func decodeOrder(d *jx.Decoder) (customer.Order, error) {
	var o customer.Order
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "user_id":
			o.UserID, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			o.Status = customer.OrderStatus(s)
		case "promotion_id":
			o.PromotionID, err = d.Str()
		case "total_cents":
			o.TotalCents, err = d.Int64()
		case "created_at":
			o.CreatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	switch {
	case err != nil:
		return o, err
	case o.ID == "" || o.UserID == "":
		return o, errors.Errorf("order %q without id or user", o.ID)
	}
	switch o.Status {
	case customer.StatusPending, customer.StatusCompleted, customer.StatusCancelled, customer.StatusRefunded:
	default:
		return o, errors.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	return o, nil
}

func decodePromotion(d *jx.Decoder) (promotion.Record, error) {
	var r promotion.Record
	if err := r.Decode(d); err != nil {
		return r, err
	}
	if r.ID == "" {
		return r, errors.New("promotion without id")
	}
	// Reject records the engine could not evaluate.
	if _, err := promotion.FromRecord(r); err != nil {
		return r, errors.Wrapf(err, "promotion %s", r.ID)
	}
	return r, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}
