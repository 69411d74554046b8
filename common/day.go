// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package common

import "time"

// EpochDay is a whole UTC day counted from the unix epoch. Daily emission
// snapshots are keyed by it.
type EpochDay int64

// DayOfTime truncates t to its UTC day.
func DayOfTime(t time.Time) EpochDay {
	return EpochDay(t.UTC().Unix() / 86400)
}

// Time returns 00:00:00 UTC of the day.
func (d EpochDay) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}
