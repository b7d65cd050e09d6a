package bps

import "time"

// Simulated pressure range in mmHg.
const (
	SystolicMin = 110
	SystolicMax = 140
)

// Simulator produces a slowly drifting series of blood pressure records.
// Systolic pressure walks up and down between SystolicMin and SystolicMax one
// mmHg per reading; the other values follow it.
type Simulator struct {
	systolic int
	rising   bool
	count    uint64
	userID   uint8
}

// NewSimulator creates a simulator starting at SystolicMin.
func NewSimulator(userID uint8) *Simulator {
	return &Simulator{
		systolic: SystolicMin,
		rising:   true,
		userID:   userID,
	}
}

// Next returns the next simulated record stamped with now.
func (s *Simulator) Next(now time.Time) Record {
	sys := float32(s.systolic)
	dia := float32(s.systolic*2/3 + 5)
	r := Record{
		Timestamp:    now,
		Systolic:     sys,
		Diastolic:    dia,
		MeanArterial: float32(int((dia+(sys-dia)/3)*10)) / 10,
		PulseRate:    float32(60 + (s.systolic-SystolicMin)),
		UserID:       s.userID,
	}
	// Every 16th reading flags body movement so status handling gets exercised.
	if s.count%16 == 15 {
		r.Status |= StatusBodyMovement
	}

	s.count++
	s.step()
	return r
}

// Count returns how many records have been produced.
func (s *Simulator) Count() uint64 {
	return s.count
}

func (s *Simulator) step() {
	if s.rising {
		s.systolic++
		if s.systolic >= SystolicMax {
			s.rising = false
		}
		return
	}
	s.systolic--
	if s.systolic <= SystolicMin {
		s.rising = true
	}
}
