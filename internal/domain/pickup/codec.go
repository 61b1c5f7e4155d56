package pickup

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Cached availability lists and window entries are hot and schema-stable,
// so they get a hand-written jx codec instead of reflection-based JSON.

func encodeWindowObj(e *jx.Encoder, w Window) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(w.ID)
	e.FieldStart("point")
	e.Str(w.PointID)
	e.FieldStart("start")
	e.Str(w.StartTime.Format(time.RFC3339Nano))
	e.FieldStart("end")
	e.Str(w.EndTime.Format(time.RFC3339Nano))
	e.FieldStart("capacity")
	e.Int(w.Capacity)
	e.FieldStart("reserved")
	e.Int(w.Reserved)
	e.ObjEnd()
}

func decodeWindowObj(d *jx.Decoder) (Window, error) {
	var w Window
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			w.ID, err = d.Str()
		case "point":
			w.PointID, err = d.Str()
		case "start":
			w.StartTime, err = decodeTime(d)
		case "end":
			w.EndTime, err = decodeTime(d)
		case "capacity":
			w.Capacity, err = d.Int()
		case "reserved":
			w.Reserved, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return w, err
}

func encodeWindow(w Window) []byte {
	var e jx.Encoder
	encodeWindowObj(&e, w)
	return e.Bytes()
}

func decodeWindow(data []byte) (*Window, error) {
	w, err := decodeWindowObj(jx.DecodeBytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode window")
	}
	return &w, nil
}

func encodeAvailabilityList(list []Availability) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, a := range list {
		encodeWindowObj(&e, Window{
			ID:        a.WindowID,
			PointID:   a.PointID,
			StartTime: a.StartTime,
			EndTime:   a.EndTime,
			Capacity:  a.Capacity,
			Reserved:  a.Reserved,
		})
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeAvailabilityList(data []byte) ([]Availability, error) {
	d := jx.DecodeBytes(data)

	var list []Availability
	if err := d.Arr(func(d *jx.Decoder) error {
		w, err := decodeWindowObj(d)
		if err != nil {
			return err
		}
		list = append(list, AvailabilityOf(w))
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode availability list")
	}
	return list, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
