// Package shelflife is the single table of storage lifetimes for whole blood
// and its components. Bag creation, separation, inventory defaults, the
// expiring-soon listings and the expiry sweep all read from here.
package shelflife

import "time"

type Kind string

const (
	WholeBlood      Kind = "whole_blood"
	RedCells        Kind = "red_cells"
	Plasma          Kind = "plasma"
	Platelets       Kind = "platelets"
	WhiteCells      Kind = "white_cells"
	Cryoprecipitate Kind = "cryoprecipitate"
)

const day = 24 * time.Hour

var days = map[Kind]int{
	WholeBlood:      35,
	RedCells:        42,
	Plasma:          365,
	Platelets:       5,
	WhiteCells:      1,
	Cryoprecipitate: 365,
}

var warningWindows = map[Kind]time.Duration{
	Platelets:  day,
	WhiteCells: 12 * time.Hour,
}

const defaultWarningWindow = 7 * day

// ComponentKinds lists the kinds a bag can be separated into.
func ComponentKinds() []Kind {
	return []Kind{RedCells, Plasma, Platelets, WhiteCells, Cryoprecipitate}
}

func IsComponent(k Kind) bool {
	return k != WholeBlood && days[k] > 0
}

// Days returns the shelf life of k. Unknown kinds are treated as whole blood.
func Days(k Kind) int {
	if d, ok := days[k]; ok {
		return d
	}
	return days[WholeBlood]
}

// Expiry is ref plus exactly Days(k) days.
func Expiry(k Kind, ref time.Time) time.Time {
	return ref.Add(time.Duration(Days(k)) * day)
}

func WarningWindow(k Kind) time.Duration {
	if w, ok := warningWindows[k]; ok {
		return w
	}
	return defaultWarningWindow
}

// IsExpiringSoon reports whether expiry falls in (now, now+window].
func IsExpiringSoon(k Kind, expiry, now time.Time) bool {
	return expiry.After(now) && !expiry.After(now.Add(WarningWindow(k)))
}

func IsExpired(expiry, now time.Time) bool {
	return !expiry.After(now)
}
