package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/camp-logistics/internal/application"
	"github.com/example/camp-logistics/internal/export"
	"github.com/example/camp-logistics/internal/live"
)

const usage = `usage: campctl [-code CODE] [-as LABEL] [-group-code CODE] [-json] <command> [args]

commands:
  seed <file.json>             load attendees, rooms and groups
  lookup <id>                  show an attendee
  checkin <id>                 mark an attendee present
  kit <id>                     record kit delivery
  assign <attendee> <room>     place an attendee in a room
  unassign <attendee> <room>   remove an attendee from a room
  unassigned                   list attendees without a room
  rooms                        list rooms with occupancy
  roster <room>                list the occupants of a room
  reconcile [group]            merge tagged attendees into group rosters
  task add <group> <text>      append a task to a group
  task toggle <group> <index>  flip a task's completion
  group-code <code>            find a group by its access code
  hash-code <code>             print a CAMP_OPERATOR_CODE_HASH value for a code
  stats                        print the dashboard
  export                       write the JSON report and CSV roster
  watch [-interval 5s]         refresh on changes from other consoles`

var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// invocation carries the global flags of one command.
type invocation struct {
	code      string
	label     string
	groupCode string
	json      bool
	args      []string
}

func (a *app) execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("campctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	inv := invocation{}
	fs.StringVar(&inv.code, "code", "", "operator code for mutating commands")
	fs.StringVar(&inv.label, "as", "console", "operator label recorded in logs and tasks")
	fs.StringVar(&inv.groupCode, "group-code", "", "act as the leader of the group with this access code")
	fs.BoolVar(&inv.json, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}
	inv.args = fs.Args()
	if len(inv.args) == 0 {
		return usageErrorf("missing command")
	}
	defer a.flushMetrics(ctx)

	name, rest := inv.args[0], inv.args[1:]
	switch name {
	case "help":
		fmt.Fprintln(a.out, usage)
		return nil
	case "seed":
		return a.cmdSeed(ctx, inv, rest)
	case "lookup":
		return a.cmdLookup(inv, rest)
	case "checkin":
		return a.cmdCheckIn(ctx, inv, rest)
	case "kit":
		return a.cmdKit(ctx, inv, rest)
	case "assign":
		return a.cmdAssign(ctx, inv, rest)
	case "unassign":
		return a.cmdUnassign(ctx, inv, rest)
	case "unassigned":
		return a.cmdUnassigned(ctx, inv)
	case "rooms":
		return a.cmdRooms(ctx, inv)
	case "roster":
		return a.cmdRoster(ctx, inv, rest)
	case "reconcile":
		return a.cmdReconcile(ctx, inv, rest)
	case "task":
		return a.cmdTask(ctx, inv, rest)
	case "group-code":
		return a.cmdGroupCode(ctx, inv, rest)
	case "hash-code":
		return a.cmdHashCode(rest)
	case "stats":
		return a.cmdStats(ctx, inv)
	case "export":
		return a.cmdExport(ctx, inv)
	case "watch":
		return a.cmdWatch(ctx, rest)
	}
	return usageErrorf("unknown command %q", name)
}

func (a *app) authorize(ctx context.Context, inv invocation) (application.Principal, error) {
	return a.gate.Authorize(ctx, inv.label, inv.code)
}

func (a *app) cmdSeed(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 1 {
		return usageErrorf("seed <file.json>")
	}
	if _, err := a.authorize(ctx, inv); err != nil {
		return err
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	var data application.Dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode dataset %s: %w", args[0], err)
	}
	result, err := a.ingest.Ingest(ctx, data)
	if err != nil {
		return err
	}
	if err := a.directory.Refresh(ctx); err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(result)
	}
	fmt.Fprintf(a.out, "seeded %d attendees, %d rooms, %d groups\n", result.Attendees, result.Rooms, result.Groups)
	return nil
}

func (a *app) cmdLookup(inv invocation, args []string) error {
	if len(args) != 1 {
		return usageErrorf("lookup <id>")
	}
	attendee, err := a.directory.Lookup(args[0])
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(attendee)
	}
	a.printAttendee(attendee)
	return nil
}

func (a *app) cmdCheckIn(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 1 {
		return usageErrorf("checkin <id>")
	}
	if _, err := a.authorize(ctx, inv); err != nil {
		return err
	}
	result, err := a.directory.CheckIn(ctx, args[0])
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(result)
	}
	if result.AlreadyPresent {
		fmt.Fprintf(a.out, "%s was already checked in\n", result.Attendee.Name)
	} else {
		fmt.Fprintf(a.out, "%s checked in\n", result.Attendee.Name)
	}
	a.printAttendee(result.Attendee)
	return nil
}

func (a *app) cmdKit(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 1 {
		return usageErrorf("kit <id>")
	}
	if _, err := a.authorize(ctx, inv); err != nil {
		return err
	}
	attendee, err := a.directory.DeliverKit(ctx, args[0])
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(attendee)
	}
	fmt.Fprintf(a.out, "kit delivered to %s\n", attendee.Name)
	return nil
}

func (a *app) cmdAssign(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 2 {
		return usageErrorf("assign <attendee> <room>")
	}
	if _, err := a.authorize(ctx, inv); err != nil {
		return err
	}
	result, err := a.rooms.Assign(ctx, application.AssignParams{AttendeeID: args[0], RoomID: args[1]})
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(result)
	}
	switch {
	case result.AlreadyAssigned:
		fmt.Fprintf(a.out, "%s is already in room %s\n", result.AttendeeName, result.RoomNumber)
	case result.PreviousRoomNumber != "":
		fmt.Fprintf(a.out, "%s moved from room %s to room %s\n", result.AttendeeName, result.PreviousRoomNumber, result.RoomNumber)
	default:
		fmt.Fprintf(a.out, "%s assigned to room %s\n", result.AttendeeName, result.RoomNumber)
	}
	fmt.Fprintf(a.out, "occupants: %s\n", strings.Join(result.Occupants, ", "))
	return nil
}

func (a *app) cmdUnassign(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 2 {
		return usageErrorf("unassign <attendee> <room>")
	}
	if _, err := a.authorize(ctx, inv); err != nil {
		return err
	}
	result, err := a.rooms.Unassign(ctx, application.UnassignParams{AttendeeID: args[0], RoomID: args[1]})
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(result)
	}
	if result.Removed {
		fmt.Fprintf(a.out, "%s removed from room %s\n", args[0], result.RoomNumber)
	} else {
		fmt.Fprintf(a.out, "%s was not in room %s\n", args[0], result.RoomNumber)
	}
	return nil
}

func (a *app) cmdUnassigned(ctx context.Context, inv invocation) error {
	attendees, err := a.rooms.UnassignedAttendeesNow(ctx)
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(attendees)
	}
	for _, attendee := range attendees {
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", attendee.ID, attendee.Name, genderLabel(attendee.Gender))
	}
	fmt.Fprintf(a.out, "%d unassigned\n", len(attendees))
	return nil
}

func (a *app) cmdRooms(ctx context.Context, inv invocation) error {
	rooms, err := a.rooms.ListRooms(ctx)
	if err != nil {
		return err
	}
	summary := application.SummarizeOccupancy(rooms)
	if inv.json {
		return a.printJSON(summary)
	}
	for _, load := range summary.Rooms {
		fmt.Fprintf(a.out, "%-6s %-12s %d/%d\n", load.RoomNumber, load.Policy, load.Occupied, load.Capacity)
	}
	fmt.Fprintf(a.out, "free rooms %d, full rooms %d, beds %d/%d\n", summary.FreeRooms, summary.FullRooms, summary.UsedBeds, summary.TotalBeds)
	return nil
}

func (a *app) cmdRoster(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 1 {
		return usageErrorf("roster <room>")
	}
	room, occupants, dangling, err := a.rooms.Roster(ctx, args[0])
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(struct {
			Room      application.Room
			Occupants []application.Attendee
			Dangling  []string
		}{room, occupants, dangling})
	}
	fmt.Fprintf(a.out, "room %s (%s) %d/%d\n", room.Number, room.Policy, len(room.Occupants), room.Capacity)
	for _, attendee := range occupants {
		fmt.Fprintf(a.out, "  %s\t%s\n", attendee.ID, attendee.Name)
	}
	for _, id := range dangling {
		fmt.Fprintf(a.out, "  %s\t(unknown attendee)\n", id)
	}
	return nil
}

func (a *app) cmdReconcile(ctx context.Context, inv invocation, args []string) error {
	if len(args) > 1 {
		return usageErrorf("reconcile [group]")
	}
	if _, err := a.authorize(ctx, inv); err != nil {
		return err
	}
	if len(args) == 1 {
		result, err := a.groups.ReconcileGroup(ctx, args[0])
		if err != nil {
			return err
		}
		if inv.json {
			return a.printJSON(result)
		}
		a.printReconcile(result)
		return nil
	}

	result, err := a.groups.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(result)
	}
	for _, group := range result.Groups {
		a.printReconcile(group)
	}
	tags := make([]string, 0, len(result.OrphanTags))
	for tag := range result.OrphanTags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Fprintf(a.out, "unknown group tag %q on %s\n", tag, strings.Join(result.OrphanTags[tag], ", "))
	}
	return nil
}

func (a *app) printReconcile(result application.ReconcileResult) {
	if len(result.AddedIDs) == 0 {
		fmt.Fprintf(a.out, "%s: up to date (%d members)\n", result.GroupID, len(result.UpdatedMembers))
		return
	}
	fmt.Fprintf(a.out, "%s: added %s (%d members)\n", result.GroupID, strings.Join(result.AddedIDs, ", "), len(result.UpdatedMembers))
}

func (a *app) cmdTask(ctx context.Context, inv invocation, args []string) error {
	if len(args) < 3 {
		return usageErrorf("task add <group> <text> | task toggle <group> <index>")
	}
	groupID := args[1]
	switch args[0] {
	case "add":
		principal, err := a.authorize(ctx, inv)
		if err != nil {
			return err
		}
		task, err := a.groups.AddTask(ctx, application.AddTaskParams{
			GroupID: groupID,
			Text:    strings.Join(args[2:], " "),
			Author:  principal.Label,
		})
		if err != nil {
			return err
		}
		if inv.json {
			return a.printJSON(task)
		}
		fmt.Fprintf(a.out, "task added to %s: %s\n", groupID, task.Text)
		return nil

	case "toggle":
		if len(args) != 3 {
			return usageErrorf("task toggle <group> <index>")
		}
		index, err := strconv.Atoi(args[2])
		if err != nil {
			return usageErrorf("task index %q is not a number", args[2])
		}
		principal, err := a.taskPrincipal(ctx, inv)
		if err != nil {
			return err
		}
		task, err := a.groups.ToggleTask(ctx, application.ToggleTaskParams{Principal: principal, GroupID: groupID, Index: index})
		if err != nil {
			return err
		}
		if inv.json {
			return a.printJSON(task)
		}
		state := "reopened"
		if task.Completed {
			state = "completed"
		}
		fmt.Fprintf(a.out, "task %d of %s %s: %s\n", index, groupID, state, task.Text)
		return nil
	}
	return usageErrorf("unknown task command %q", args[0])
}

// taskPrincipal resolves a leader from -group-code, or the operator otherwise.
func (a *app) taskPrincipal(ctx context.Context, inv invocation) (application.Principal, error) {
	if strings.TrimSpace(inv.groupCode) != "" {
		_, principal, err := a.groups.FindGroupByAccessCode(ctx, inv.groupCode)
		return principal, err
	}
	return a.authorize(ctx, inv)
}

func (a *app) cmdGroupCode(ctx context.Context, inv invocation, args []string) error {
	if len(args) != 1 {
		return usageErrorf("group-code <code>")
	}
	group, _, err := a.groups.FindGroupByAccessCode(ctx, args[0])
	if err != nil {
		return err
	}
	members := application.ComputeEffectiveMembers(group, a.directory.List())
	if inv.json {
		return a.printJSON(struct {
			Group   application.Group
			Members []string
		}{group, members})
	}
	fmt.Fprintf(a.out, "%s (%s), leader %s, %d members\n", group.Name, group.ID, group.LeaderID, len(members))
	for i, task := range group.Tasks {
		mark := " "
		if task.Completed {
			mark = "x"
		}
		fmt.Fprintf(a.out, "  [%s] %d %s\n", mark, i, task.Text)
	}
	return nil
}

func (a *app) cmdHashCode(args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usageErrorf("hash-code <code>")
	}
	hashed, err := application.HashOperatorCode(strings.TrimSpace(args[0]), a.hashParams)
	if err != nil {
		return fmt.Errorf("hash operator code: %w", err)
	}
	fmt.Fprintln(a.out, hashed)
	return nil
}

func (a *app) cmdStats(ctx context.Context, inv invocation) error {
	d, _, _, err := a.dashboard(ctx)
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(d)
	}
	fmt.Fprintf(a.out, "attendees %d, present %d (%.0f%%), kits %d, unassigned %d\n",
		d.Attendees, d.Present, d.PresenceRate*100, d.KitsDelivered, d.Unassigned)
	fmt.Fprintf(a.out, "rooms: %d free, %d full, beds %d/%d\n",
		d.Occupancy.FreeRooms, d.Occupancy.FullRooms, d.Occupancy.UsedBeds, d.Occupancy.TotalBeds)
	if d.UnknownGenders > 0 {
		fmt.Fprintf(a.out, "attendees with unknown gender: %d\n", d.UnknownGenders)
	}
	for _, bar := range d.CheckIns.Window {
		fmt.Fprintf(a.out, "%02d:00 %s %d\n", bar.Hour, strings.Repeat("#", bar.Count), bar.Count)
	}
	if d.CheckIns.Outside > 0 {
		fmt.Fprintf(a.out, "outside window: %d\n", d.CheckIns.Outside)
	}
	for _, roster := range d.Workshops {
		name := roster.Workshop
		if name == application.NoWorkshop {
			name = "(no workshop)"
		}
		fmt.Fprintf(a.out, "workshop %s: %d/%d present\n", name, roster.Present, len(roster.Attendees))
	}
	for _, group := range d.Groups {
		fmt.Fprintf(a.out, "group %s: %d members, %d present, tasks %d open %d done\n",
			group.Name, group.Members, group.PresentCount, group.OpenTasks, group.DoneTasks)
	}
	return nil
}

func (a *app) cmdExport(ctx context.Context, inv invocation) error {
	_, rooms, groups, err := a.dashboard(ctx)
	if err != nil {
		return err
	}
	report := export.Build(a.now(), a.directory.List(), rooms, groups, a.window(), a.location())
	exporter, err := a.exporter(ctx)
	if err != nil {
		return err
	}
	locations, err := exporter.Export(ctx, report)
	if err != nil {
		return err
	}
	if inv.json {
		return a.printJSON(locations)
	}
	for _, location := range locations {
		fmt.Fprintln(a.out, location)
	}
	return nil
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	interval := fs.Duration("interval", 5*time.Second, "poll interval without redis")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}

	refresh := live.RefreshOnChange(a.directory)
	handle := func(ctx context.Context, change live.Change) error {
		if err := refresh(ctx, change); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s/%s refreshed %d attendees\n",
			a.now().Format(time.TimeOnly), change.Collection, change.DocID, a.directory.Len())
		return nil
	}

	if a.redis != nil {
		return live.NewSubscriber(a.redis, a.cfg.RedisChannel, a.logger).Run(ctx, handle)
	}
	clock, ok := a.store.(live.ChangeClock)
	if !ok {
		return fmt.Errorf("store driver %q cannot report changes", a.cfg.StoreDriver)
	}
	a.logger.InfoContext(ctx, "watching store for changes", "interval", interval.String())
	return live.NewPoller(clock, *interval, a.logger).Run(ctx, handle)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printAttendee(attendee application.Attendee) {
	room := attendee.RoomNumber
	if room == "" {
		room = "-"
	}
	checkIn := "-"
	if attendee.CheckInTime != nil {
		checkIn = attendee.CheckInTime.In(a.location()).Format("15:04")
	}
	fmt.Fprintf(a.out, "%s\t%s\n", attendee.ID, attendee.Name)
	fmt.Fprintf(a.out, "  gender %s, group %s, room %s, workshop %s\n",
		genderLabel(attendee.Gender), orDash(attendee.GroupTag), room, orDash(attendee.Workshop))
	fmt.Fprintf(a.out, "  present %t (%s), kit %t, payment %s\n",
		attendee.Present, checkIn, attendee.KitDelivered, orDash(attendee.PaymentStatus))
}

func genderLabel(g application.Gender) string {
	if g == application.GenderUnknown {
		return "UNKNOWN"
	}
	return string(g)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// describeError renders validation details alongside the message.
func describeError(err error) string {
	var vErr *application.ValidationError
	if errors.As(err, &vErr) && vErr.HasErrors() {
		fields := make([]string, 0, len(vErr.FieldErrors))
		for field := range vErr.FieldErrors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			parts = append(parts, field+": "+vErr.FieldErrors[field])
		}
		return vErr.Error() + ": " + strings.Join(parts, "; ")
	}
	if errors.Is(err, errUsage) {
		return err.Error() + "\n" + usage
	}
	return err.Error()
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, application.ErrUnauthorized):
		return 3
	case errors.Is(err, application.ErrPersistence):
		return 4
	}
	return 1
}
