// Package bps produces simulated blood pressure readings and encodes them the
// way the Blood Pressure and Battery GATT services carry them on the air.
package bps

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// GATT assigned numbers used by the sensor.
const (
	ServiceBloodPressure uint16 = 0x1810
	CharMeasurement      uint16 = 0x2A35
	CharFeature          uint16 = 0x2A49
	ServiceBattery       uint16 = 0x180F
	CharBatteryLevel     uint16 = 0x2A19
)

// Measurement flags (first octet of the measurement characteristic).
const (
	flagUnitsKPa      = 1 << 0
	flagTimestamp     = 1 << 1
	flagPulseRate     = 1 << 2
	flagUserID        = 1 << 3
	flagMeasureStatus = 1 << 4
)

// Feature bits advertised in the Blood Pressure Feature characteristic.
const (
	FeatureBodyMovement   uint16 = 1 << 0
	FeatureCuffFit        uint16 = 1 << 1
	FeatureIrregularPulse uint16 = 1 << 2
	FeaturePulseRange     uint16 = 1 << 3
	FeaturePosition       uint16 = 1 << 4
	FeatureMultipleBond   uint16 = 1 << 5
)

// DefaultFeature is the feature set of the simulated cuff.
const DefaultFeature = FeatureBodyMovement | FeatureCuffFit | FeatureIrregularPulse | FeaturePulseRange

// Measurement status bits.
const (
	StatusBodyMovement   uint16 = 1 << 0
	StatusCuffLoose      uint16 = 1 << 1
	StatusIrregularPulse uint16 = 1 << 2
)

// UserUnknown is the reserved "unknown user" id.
const UserUnknown uint8 = 0xFF

// ErrShortRecord is returned when decoding a truncated measurement.
var ErrShortRecord = errors.New("bps: short measurement record")

// Record is one blood pressure measurement in mmHg.
type Record struct {
	Timestamp    time.Time
	Systolic     float32
	Diastolic    float32
	MeanArterial float32
	PulseRate    float32
	UserID       uint8
	Status       uint16
}

// FeatureValue returns the Blood Pressure Feature characteristic value.
func FeatureValue(feature uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, feature)
	return b
}

// Encode returns the Blood Pressure Measurement characteristic value.
func (r Record) Encode() []byte {
	flags := byte(flagTimestamp | flagPulseRate | flagUserID | flagMeasureStatus)
	b := make([]byte, 0, 19)
	b = append(b, flags)
	b = binary.LittleEndian.AppendUint16(b, EncodeSFloat(r.Systolic))
	b = binary.LittleEndian.AppendUint16(b, EncodeSFloat(r.Diastolic))
	b = binary.LittleEndian.AppendUint16(b, EncodeSFloat(r.MeanArterial))
	b = appendDateTime(b, r.Timestamp)
	b = binary.LittleEndian.AppendUint16(b, EncodeSFloat(r.PulseRate))
	b = append(b, r.UserID)
	b = binary.LittleEndian.AppendUint16(b, r.Status)
	return b
}

// Decode parses a Blood Pressure Measurement characteristic value.
// Values reported in kPa are returned unconverted.
func Decode(b []byte) (Record, error) {
	var r Record
	if len(b) < 7 {
		return r, ErrShortRecord
	}
	flags := b[0]
	r.Systolic = DecodeSFloat(binary.LittleEndian.Uint16(b[1:]))
	r.Diastolic = DecodeSFloat(binary.LittleEndian.Uint16(b[3:]))
	r.MeanArterial = DecodeSFloat(binary.LittleEndian.Uint16(b[5:]))
	b = b[7:]

	if flags&flagTimestamp != 0 {
		if len(b) < 7 {
			return r, ErrShortRecord
		}
		r.Timestamp = time.Date(int(binary.LittleEndian.Uint16(b)), time.Month(b[2]), int(b[3]),
			int(b[4]), int(b[5]), int(b[6]), 0, time.UTC)
		b = b[7:]
	}
	if flags&flagPulseRate != 0 {
		if len(b) < 2 {
			return r, ErrShortRecord
		}
		r.PulseRate = DecodeSFloat(binary.LittleEndian.Uint16(b))
		b = b[2:]
	}
	if flags&flagUserID != 0 {
		if len(b) < 1 {
			return r, ErrShortRecord
		}
		r.UserID = b[0]
		b = b[1:]
	}
	if flags&flagMeasureStatus != 0 {
		if len(b) < 2 {
			return r, ErrShortRecord
		}
		r.Status = binary.LittleEndian.Uint16(b)
	}
	return r, nil
}

func appendDateTime(b []byte, t time.Time) []byte {
	t = t.UTC()
	b = binary.LittleEndian.AppendUint16(b, uint16(t.Year()))
	return append(b, byte(t.Month()), byte(t.Day()), byte(t.Hour()), byte(t.Minute()), byte(t.Second()))
}

// IEEE-11073 16-bit SFLOAT special values.
const (
	sfloatNaN         uint16 = 0x07FF
	sfloatPosInf      uint16 = 0x07FE
	sfloatNegInf      uint16 = 0x0802
	sfloatMaxMantissa        = 2045
)

// EncodeSFloat encodes v as an SFLOAT with the most precise exponent whose
// mantissa fits in 12 bits.
func EncodeSFloat(v float32) uint16 {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return sfloatNaN
	case math.IsInf(f, 1):
		return sfloatPosInf
	case math.IsInf(f, -1):
		return sfloatNegInf
	}

	for exp := -8; exp <= 7; exp++ {
		m := math.Round(f / math.Pow10(exp))
		if math.Abs(m) <= sfloatMaxMantissa {
			return uint16(exp&0x0F)<<12 | uint16(int16(m))&0x0FFF
		}
	}
	if f > 0 {
		return sfloatPosInf
	}
	return sfloatNegInf
}

// DecodeSFloat decodes an SFLOAT. Reserved values decode to NaN or ±Inf.
func DecodeSFloat(raw uint16) float32 {
	switch raw {
	case sfloatNaN, 0x0800, 0x0801:
		return float32(math.NaN())
	case sfloatPosInf:
		return float32(math.Inf(1))
	case sfloatNegInf:
		return float32(math.Inf(-1))
	}
	mantissa := int16(raw<<4) >> 4
	exp := int8(byte(raw>>8)) >> 4
	return float32(float64(mantissa) * math.Pow10(int(exp)))
}
