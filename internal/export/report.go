// Package export renders console snapshots as JSON reports and CSV room
// rosters and stores them through a BlobWriter.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/example/camp-logistics/internal/application"
)

// Occupant is an attendee listed in a room roster.
type Occupant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Present  bool   `json:"present"`
	Dangling bool   `json:"dangling,omitempty"`
}

// RoomRoster lists the occupants of a room.
type RoomRoster struct {
	RoomID    string     `json:"roomId"`
	Number    string     `json:"number"`
	Floor     string     `json:"floor,omitempty"`
	Policy    string     `json:"policy"`
	Capacity  int        `json:"capacity"`
	Occupants []Occupant `json:"occupants"`
}

// GroupRoster lists the effective members of a group.
type GroupRoster struct {
	GroupID   string   `json:"groupId"`
	Name      string   `json:"name"`
	LeaderID  string   `json:"leaderId,omitempty"`
	Members   []string `json:"members"`
	OpenTasks int      `json:"openTasks"`
	DoneTasks int      `json:"doneTasks"`
}

// Summary is the headline block of the report.
type Summary struct {
	Attendees      int            `json:"attendees"`
	Present        int            `json:"present"`
	PresenceRate   float64        `json:"presenceRate"`
	KitsDelivered  int            `json:"kitsDelivered"`
	Unassigned     int            `json:"unassigned"`
	FreeRooms      int            `json:"freeRooms"`
	FullRooms      int            `json:"fullRooms"`
	TotalBeds      int            `json:"totalBeds"`
	UsedBeds       int            `json:"usedBeds"`
	CheckInsByHour map[string]int `json:"checkInsByHour"`
	UnknownGenders int            `json:"unknownGenders"`
}

// Report is a point-in-time export of the console state.
type Report struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Summary     Summary       `json:"summary"`
	Rooms       []RoomRoster  `json:"rooms"`
	Unassigned  []Occupant    `json:"unassigned"`
	Groups      []GroupRoster `json:"groups"`
}

// Build assembles a report from the current collections.
func Build(now time.Time, attendees []application.Attendee, rooms []application.Room, groups []application.Group, window application.HourWindow, loc *time.Location) Report {
	dash := application.DashboardSummary(now, attendees, rooms, groups, window, loc)

	byID := make(map[string]application.Attendee, len(attendees))
	for _, attendee := range attendees {
		byID[attendee.ID] = attendee
	}

	hours := make(map[string]int, len(dash.CheckIns.Window))
	for _, bar := range dash.CheckIns.Window {
		hours[fmt.Sprintf("%02d", bar.Hour)] = bar.Count
	}

	report := Report{
		GeneratedAt: now.UTC(),
		Summary: Summary{
			Attendees:      dash.Attendees,
			Present:        dash.Present,
			PresenceRate:   dash.PresenceRate,
			KitsDelivered:  dash.KitsDelivered,
			Unassigned:     dash.Unassigned,
			FreeRooms:      dash.Occupancy.FreeRooms,
			FullRooms:      dash.Occupancy.FullRooms,
			TotalBeds:      dash.Occupancy.TotalBeds,
			UsedBeds:       dash.Occupancy.UsedBeds,
			CheckInsByHour: hours,
			UnknownGenders: dash.UnknownGenders,
		},
		Rooms:      make([]RoomRoster, 0, len(rooms)),
		Unassigned: make([]Occupant, 0, dash.Unassigned),
		Groups:     make([]GroupRoster, 0, len(groups)),
	}

	sorted := make([]application.Room, len(rooms))
	copy(sorted, rooms)
	application.SortRooms(sorted)
	for _, room := range sorted {
		roster := RoomRoster{
			RoomID:    room.ID,
			Number:    room.Number,
			Floor:     room.Floor,
			Policy:    string(room.Policy),
			Capacity:  room.Capacity,
			Occupants: make([]Occupant, 0, len(room.Occupants)),
		}
		for _, id := range room.Occupants {
			attendee, ok := byID[id]
			roster.Occupants = append(roster.Occupants, Occupant{ID: id, Name: attendee.Name, Present: attendee.Present, Dangling: !ok})
		}
		report.Rooms = append(report.Rooms, roster)
	}

	for _, attendee := range application.UnassignedAttendees(attendees, rooms) {
		report.Unassigned = append(report.Unassigned, Occupant{ID: attendee.ID, Name: attendee.Name, Present: attendee.Present})
	}

	for i, group := range groups {
		summary := dash.Groups[i]
		report.Groups = append(report.Groups, GroupRoster{
			GroupID:   group.ID,
			Name:      group.Name,
			LeaderID:  group.LeaderID,
			Members:   application.ComputeEffectiveMembers(group, attendees),
			OpenTasks: summary.OpenTasks,
			DoneTasks: summary.DoneTasks,
		})
	}
	return report
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

var rosterHeader = []string{"habitacion", "piso", "genero", "capacidad", "id", "nombre", "presente"}

// WriteRoomCSV writes one row per occupant. Empty rooms get a single row
// without occupant columns so they still appear in the sheet.
func WriteRoomCSV(w io.Writer, report Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rosterHeader); err != nil {
		return err
	}
	for _, room := range report.Rooms {
		base := []string{room.Number, room.Floor, room.Policy, strconv.Itoa(room.Capacity)}
		if len(room.Occupants) == 0 {
			if err := cw.Write(append(base, "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, occupant := range room.Occupants {
			row := append(append([]string{}, base...), occupant.ID, occupant.Name, strconv.FormatBool(occupant.Present))
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
