package prayer

import (
	"fmt"
	"strings"
)

// Kind names one of the seven daily events. Values are in chronological order.
type Kind int

const (
	Imsak Kind = iota
	Fajr
	Sunrise
	Dhuhr
	Asr
	Maghrib
	Isha
)

// KindCount is the number of Kind values; per-kind tables are sized by it.
const KindCount = 7

var kindNames = [KindCount]string{"imsak", "fajr", "sunrise", "dhuhr", "asr", "maghrib", "isha"}

var kindTitles = [KindCount]string{"Imsak", "Fajr", "Sunrise", "Dhuhr", "Asr", "Maghrib", "Isha"}

func (k Kind) Valid() bool { return k >= 0 && int(k) < KindCount }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Title is the display form ("Fajr").
func (k Kind) Title() string {
	if !k.Valid() {
		return k.String()
	}
	return kindTitles[k]
}

// Informational kinds carry no deadline and no alert and are never "current" or "next".
func (k Kind) Informational() bool { return k == Imsak || k == Sunrise }

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind accepts the canonical names plus the common alternative spellings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "imsak", "suhoor":
		return Imsak, nil
	case "fajr", "subuh", "subh":
		return Fajr, nil
	case "sunrise", "shuruq", "syuruq":
		return Sunrise, nil
	case "dhuhr", "zuhr", "zhuhr", "dzuhur", "jumuah":
		return Dhuhr, nil
	case "asr", "ashar":
		return Asr, nil
	case "maghrib", "iftar":
		return Maghrib, nil
	case "isha", "isya":
		return Isha, nil
	default:
		return 0, fmt.Errorf("unknown prayer kind %q", s)
	}
}

// Kinds returns every kind in chronological order.
func Kinds() []Kind {
	return []Kind{Imsak, Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}
}

// Obligatory returns the five non-informational kinds in chronological order.
func Obligatory() []Kind {
	return []Kind{Fajr, Dhuhr, Asr, Maghrib, Isha}
}

// Method selects the solver's calculation convention.
type Method string

const (
	MethodMuslimWorldLeague     Method = "mwl"
	MethodEgyptian              Method = "egyptian"
	MethodKarachi               Method = "karachi"
	MethodUmmAlQura             Method = "umm_al_qura"
	MethodDubai                 Method = "dubai"
	MethodMoonsightingCommittee Method = "moonsighting"
	MethodNorthAmerica          Method = "isna"
	MethodKuwait                Method = "kuwait"
	MethodQatar                 Method = "qatar"
	MethodSingapore             Method = "singapore"
	MethodTehran                Method = "tehran"
	MethodTurkey                Method = "turkey"
)

// Methods lists the twelve supported methods.
func Methods() []Method {
	return []Method{
		MethodMuslimWorldLeague, MethodEgyptian, MethodKarachi, MethodUmmAlQura,
		MethodDubai, MethodMoonsightingCommittee, MethodNorthAmerica, MethodKuwait,
		MethodQatar, MethodSingapore, MethodTehran, MethodTurkey,
	}
}

func (m Method) Valid() bool {
	for _, v := range Methods() {
		if v == m {
			return true
		}
	}
	return false
}

// Madhab selects the asr shadow convention. It only matters to the solver.
type Madhab string

const (
	MadhabShafi  Madhab = "shafi"
	MadhabHanafi Madhab = "hanafi"
)

func (m Madhab) Valid() bool { return m == MadhabShafi || m == MadhabHanafi }
