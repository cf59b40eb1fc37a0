package application

import (
	"sort"
	"strings"
	"time"
)

// NoWorkshop is the bucket key for attendees without a workshop.
const NoWorkshop = ""

// ratio returns part/whole, or 0 when whole is not positive.
func ratio(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// PresenceRate returns the share of attendees marked present.
func PresenceRate(attendees []Attendee) float64 {
	present := 0
	for _, attendee := range attendees {
		if attendee.Present {
			present++
		}
	}
	return ratio(present, len(attendees))
}

// RoomLoad is the occupancy of a single room.
type RoomLoad struct {
	RoomID     string
	RoomNumber string
	Policy     GenderPolicy
	Occupied   int
	Capacity   int
	Ratio      float64
}

// OccupancySummary aggregates room occupancy.
type OccupancySummary struct {
	Rooms     []RoomLoad
	FreeRooms int
	FullRooms int
	TotalBeds int
	UsedBeds  int
}

// FreeBeds returns the beds still available across all rooms.
func (s OccupancySummary) FreeBeds() int {
	free := s.TotalBeds - s.UsedBeds
	if free < 0 {
		return 0
	}
	return free
}

// RoomOccupancy returns occupants/capacity for the room, 0 for a room
// without capacity.
func RoomOccupancy(room Room) float64 {
	return ratio(len(room.Occupants), room.Capacity)
}

// SummarizeOccupancy computes per-room loads in natural room order along with
// the free and full room counts.
func SummarizeOccupancy(rooms []Room) OccupancySummary {
	sorted := make([]Room, len(rooms))
	copy(sorted, rooms)
	SortRooms(sorted)

	summary := OccupancySummary{Rooms: make([]RoomLoad, 0, len(sorted))}
	for _, room := range sorted {
		summary.Rooms = append(summary.Rooms, RoomLoad{
			RoomID:     room.ID,
			RoomNumber: room.Number,
			Policy:     room.Policy,
			Occupied:   len(room.Occupants),
			Capacity:   room.Capacity,
			Ratio:      RoomOccupancy(room),
		})
		if room.Full() {
			summary.FullRooms++
		} else {
			summary.FreeRooms++
		}
		if room.Capacity > 0 {
			summary.TotalBeds += room.Capacity
		}
		summary.UsedBeds += len(room.Occupants)
	}
	return summary
}

// WorkshopRoster lists the attendees of one workshop.
type WorkshopRoster struct {
	Workshop     string
	Attendees    []Attendee
	Present      int
	PresenceRate float64
}

// WorkshopRosters groups attendees by workshop. The NoWorkshop bucket is
// always present and sorts last; the rest sort by name.
func WorkshopRosters(attendees []Attendee) []WorkshopRoster {
	buckets := map[string]*WorkshopRoster{NoWorkshop: {Workshop: NoWorkshop}}
	var order []string
	for _, attendee := range attendees {
		key := strings.TrimSpace(attendee.Workshop)
		roster, ok := buckets[key]
		if !ok {
			roster = &WorkshopRoster{Workshop: key}
			buckets[key] = roster
			order = append(order, key)
		}
		roster.Attendees = append(roster.Attendees, attendee)
		if attendee.Present {
			roster.Present++
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := strings.ToLower(order[i]), strings.ToLower(order[j])
		if a != b {
			return a < b
		}
		return order[i] < order[j]
	})
	order = append(order, NoWorkshop)

	out := make([]WorkshopRoster, 0, len(order))
	for _, key := range order {
		roster := buckets[key]
		roster.PresenceRate = ratio(roster.Present, len(roster.Attendees))
		out = append(out, *roster)
	}
	return out
}

// HourWindow is an inclusive range of hours shown by the histogram.
type HourWindow struct {
	Start int
	End   int
}

// DefaultHourWindow is the check-in desk's opening hours.
var DefaultHourWindow = HourWindow{Start: 8, End: 19}

func (w HourWindow) normalized() HourWindow {
	clamp := func(h int) int {
		switch {
		case h < 0:
			return 0
		case h > 23:
			return 23
		}
		return h
	}
	w.Start, w.End = clamp(w.Start), clamp(w.End)
	if w.Start > w.End {
		w.Start, w.End = w.End, w.Start
	}
	return w
}

// HourCount is one bar of the check-in histogram.
type HourCount struct {
	Hour  int
	Count int
}

// CheckInHistogram buckets check-in times by hour of day. ByHour keeps all 24
// hours; Window holds only the displayed range. Outside counts the check-ins
// that fell outside the window and are not shown.
type CheckInHistogram struct {
	ByHour  [24]int
	Window  []HourCount
	Total   int
	Outside int
}

// CheckInsByHour builds the histogram in the given location. A nil location
// means UTC. Attendees without a check-in time are ignored.
func CheckInsByHour(attendees []Attendee, window HourWindow, loc *time.Location) CheckInHistogram {
	if loc == nil {
		loc = time.UTC
	}
	window = window.normalized()

	var hist CheckInHistogram
	for _, attendee := range attendees {
		if attendee.CheckInTime == nil {
			continue
		}
		hist.ByHour[attendee.CheckInTime.In(loc).Hour()]++
		hist.Total++
	}

	hist.Window = make([]HourCount, 0, window.End-window.Start+1)
	shown := 0
	for hour := window.Start; hour <= window.End; hour++ {
		hist.Window = append(hist.Window, HourCount{Hour: hour, Count: hist.ByHour[hour]})
		shown += hist.ByHour[hour]
	}
	hist.Outside = hist.Total - shown
	return hist
}

// GroupSummary reports a group's effective size and task progress.
type GroupSummary struct {
	GroupID      string
	Name         string
	Members      int
	PresentCount int
	OpenTasks    int
	DoneTasks    int
}

// GroupSummaries computes the effective membership and task counts of every
// group without persisting anything.
func GroupSummaries(groups []Group, attendees []Attendee) []GroupSummary {
	present := make(map[string]bool, len(attendees))
	for _, attendee := range attendees {
		present[attendee.ID] = attendee.Present
	}

	out := make([]GroupSummary, 0, len(groups))
	for _, group := range groups {
		members := ComputeEffectiveMembers(group, attendees)
		summary := GroupSummary{GroupID: group.ID, Name: group.Name, Members: len(members)}
		for _, id := range members {
			if present[id] {
				summary.PresentCount++
			}
		}
		for _, task := range group.Tasks {
			if task.Completed {
				summary.DoneTasks++
			} else {
				summary.OpenTasks++
			}
		}
		out = append(out, summary)
	}
	return out
}

// Dashboard aggregates every derived statistic of the console.
type Dashboard struct {
	GeneratedAt    time.Time
	Attendees      int
	Present        int
	PresenceRate   float64
	KitsDelivered  int
	Unassigned     int
	Occupancy      OccupancySummary
	Workshops      []WorkshopRoster
	CheckIns       CheckInHistogram
	Groups         []GroupSummary
	UnknownGenders int
}

// DashboardSummary computes the dashboard from the given collections.
func DashboardSummary(now time.Time, attendees []Attendee, rooms []Room, groups []Group, window HourWindow, loc *time.Location) Dashboard {
	d := Dashboard{
		GeneratedAt:  now,
		Attendees:    len(attendees),
		PresenceRate: PresenceRate(attendees),
		Unassigned:   len(UnassignedAttendees(attendees, rooms)),
		Occupancy:    SummarizeOccupancy(rooms),
		Workshops:    WorkshopRosters(attendees),
		CheckIns:     CheckInsByHour(attendees, window, loc),
		Groups:       GroupSummaries(groups, attendees),
	}
	for _, attendee := range attendees {
		if attendee.Present {
			d.Present++
		}
		if attendee.KitDelivered {
			d.KitsDelivered++
		}
		if attendee.Gender == GenderUnknown {
			d.UnknownGenders++
		}
	}
	return d
}
