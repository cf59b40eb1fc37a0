package application

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

// GroupService reconciles group rosters with attendee tags and manages the
// per-group task ledger.
type GroupService struct {
	repo      persistence.Store
	unit      unitOfWork
	directory *Directory
	hooks     Hooks
	now       func() time.Time
	logger    *slog.Logger
}

// NewGroupService constructs a group service with the provided dependencies.
func NewGroupService(repo persistence.Store, directory *Directory, now func() time.Time) *GroupService {
	return NewGroupServiceWithLogger(repo, directory, Hooks{}, now, nil)
}

// NewGroupServiceWithLogger constructs a group service with hooks and a specified logger.
func NewGroupServiceWithLogger(repo persistence.Store, directory *Directory, hooks Hooks, now func() time.Time, logger *slog.Logger) *GroupService {
	if now == nil {
		now = time.Now
	}
	return &GroupService{
		repo:      repo,
		unit:      unitOfWork{store: repo},
		directory: directory,
		hooks:     hooks,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *GroupService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GroupService", operation, attrs...)
}

func (s *GroupService) ready() error {
	if s == nil {
		return fmt.Errorf("GroupService is nil")
	}
	if s.repo == nil {
		return fmt.Errorf("group repository not configured")
	}
	return nil
}

// ComputeEffectiveMembers returns the union of the explicit roster and the
// attendees whose tag equals the group id after trimming. Roster order is
// kept and newly tagged attendees follow in input order.
func ComputeEffectiveMembers(group Group, attendees []Attendee) []string {
	return Reconcile(group, attendees).UpdatedMembers
}

// Reconcile computes the additive merge of a group's roster with its tagged
// attendees. Running it on its own output adds nothing.
func Reconcile(group Group, attendees []Attendee) ReconcileResult {
	groupID := strings.TrimSpace(group.ID)
	members := dedupe(group.Members)
	seen := make(map[string]struct{}, len(members))
	for _, id := range members {
		seen[id] = struct{}{}
	}

	var added []string
	if groupID != "" {
		for _, attendee := range attendees {
			if strings.TrimSpace(attendee.GroupTag) != groupID {
				continue
			}
			id := strings.TrimSpace(attendee.ID)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, id)
			added = append(added, id)
		}
	}

	return ReconcileResult{GroupID: groupID, UpdatedMembers: members, AddedIDs: added}
}

// ListGroups returns every group ordered by name then id.
func (s *GroupService) ListGroups(ctx context.Context) ([]Group, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListGroups(ctx)
	if err != nil {
		err = &PersistenceError{Op: "list groups", Err: err}
		s.loggerWith(ctx, "ListGroups").ErrorContext(ctx, "failed to list groups", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	groups := make([]Group, 0, len(docs))
	for _, doc := range docs {
		groups = append(groups, toGroup(doc))
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := strings.ToLower(groups[i].Name), strings.ToLower(groups[j].Name)
		if a != b {
			return a < b
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

// GetGroup returns a single group.
func (s *GroupService) GetGroup(ctx context.Context, groupID string) (Group, error) {
	if err := s.ready(); err != nil {
		return Group{}, err
	}
	doc, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return Group{}, mapRepoError(EntityGroup, groupID, "read group", err)
	}
	return toGroup(doc), nil
}

// ReconcileGroup merges tagged attendees into the stored roster. Nothing is
// written when no attendee is added.
func (s *GroupService) ReconcileGroup(ctx context.Context, groupID string) (result ReconcileResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if s.directory == nil {
		err = fmt.Errorf("attendee directory not configured")
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "ReconcileGroup", "group_id", groupID)
	defer func() {
		s.hooks.observe(ctx, "group.reconcile", started, err)
		logOutcome(ctx, logger.With("added", len(result.AddedIDs)), err, "reconciliation failed", "group reconciled")
	}()

	result, err = s.reconcile(ctx, logger, strings.TrimSpace(groupID), s.directory.List())
	return
}

// ReconcileAll reconciles every group against one directory snapshot. Tags
// that name no existing group are reported as orphans and never create one.
func (s *GroupService) ReconcileAll(ctx context.Context) (result ReconcileAllResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if s.directory == nil {
		err = fmt.Errorf("attendee directory not configured")
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "ReconcileAll")
	defer func() {
		s.hooks.observe(ctx, "group.reconcile_all", started, err)
		logOutcome(ctx, logger.With("groups", len(result.Groups), "orphan_tags", len(result.OrphanTags)),
			err, "reconciliation failed", "groups reconciled")
	}()

	groups, err := s.ListGroups(ctx)
	if err != nil {
		return
	}
	attendees := s.directory.List()

	known := make(map[string]struct{}, len(groups))
	for _, group := range groups {
		known[group.ID] = struct{}{}
		var res ReconcileResult
		res, err = s.reconcile(ctx, logger, group.ID, attendees)
		if err != nil {
			return
		}
		result.Groups = append(result.Groups, res)
	}
	result.OrphanTags = OrphanTags(attendees, known)
	return
}

// reconcile re-reads the group inside a unit of work so the roster it extends
// is the one it writes back.
func (s *GroupService) reconcile(ctx context.Context, logger *slog.Logger, groupID string, attendees []Attendee) (ReconcileResult, error) {
	var result ReconcileResult
	err := s.unit.run(ctx, func(tx persistence.Store) error {
		doc, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return mapRepoError(EntityGroup, groupID, "read group", err)
		}
		result = Reconcile(toGroup(doc), attendees)
		if len(result.AddedIDs) == 0 {
			return nil
		}
		if _, err := tx.UpdateGroup(ctx, doc.ID, persistence.GroupPatch{Members: result.UpdatedMembers}); err != nil {
			return mapRepoError(EntityGroup, doc.ID, "update group", err)
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{GroupID: groupID}, err
	}
	if len(result.AddedIDs) > 0 {
		s.hooks.notify(ctx, logger, Change{Collection: "groups", DocumentID: result.GroupID, Operation: "update"})
	}
	return result, nil
}

// OrphanTags maps every non-empty tag that is not a known group id to the
// attendees carrying it.
func OrphanTags(attendees []Attendee, known map[string]struct{}) map[string][]string {
	orphans := make(map[string][]string)
	for _, attendee := range attendees {
		tag := strings.TrimSpace(attendee.GroupTag)
		if tag == "" {
			continue
		}
		if _, ok := known[tag]; ok {
			continue
		}
		orphans[tag] = append(orphans[tag], attendee.ID)
	}
	return orphans
}

// AddTask appends an open task to the group's ledger.
func (s *GroupService) AddTask(ctx context.Context, params AddTaskParams) (task Task, err error) {
	if err = s.ready(); err != nil {
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "AddTask", "group_id", params.GroupID, "author", params.Author)
	defer func() {
		s.hooks.observe(ctx, "task.add", started, err)
		logOutcome(ctx, logger, err, "task rejected", "task added")
	}()

	text := strings.TrimSpace(params.Text)
	if text == "" {
		vErr := &ValidationError{}
		vErr.add("text", "task text must not be empty")
		err = vErr
		return
	}

	groupID := strings.TrimSpace(params.GroupID)
	err = s.updateTasks(ctx, groupID, func(tasks []Task) ([]Task, error) {
		task = Task{
			Text:      text,
			CreatedAt: s.now().UTC(),
			CreatedBy: strings.TrimSpace(params.Author),
		}
		return append(tasks, task), nil
	})
	if err != nil {
		return
	}
	s.hooks.notify(ctx, logger, Change{Collection: "groups", DocumentID: groupID, Operation: "update"})
	return
}

// ToggleTask flips the completion of the task at index. Completing stamps
// the completion time and reopening clears it. Only operators and the
// group's own leader may toggle.
func (s *GroupService) ToggleTask(ctx context.Context, params ToggleTaskParams) (task Task, err error) {
	if err = s.ready(); err != nil {
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "ToggleTask",
		"group_id", params.GroupID,
		"index", params.Index,
		"principal", params.Principal.Label,
	)
	defer func() {
		s.hooks.observe(ctx, "task.toggle", started, err)
		logOutcome(ctx, logger.With("completed", task.Completed), err, "task toggle rejected", "task toggled")
	}()

	groupID := strings.TrimSpace(params.GroupID)
	if !canToggle(params.Principal, groupID) {
		err = ErrUnauthorized
		return
	}

	err = s.updateTasks(ctx, groupID, func(tasks []Task) ([]Task, error) {
		if params.Index < 0 || params.Index >= len(tasks) {
			return nil, &IndexError{Index: params.Index, Length: len(tasks)}
		}
		task = tasks[params.Index]
		task.Completed = !task.Completed
		if task.Completed {
			now := s.now().UTC()
			task.CompletedAt = &now
		} else {
			task.CompletedAt = nil
		}
		tasks[params.Index] = task
		return tasks, nil
	})
	if err != nil {
		return
	}
	s.hooks.notify(ctx, logger, Change{Collection: "groups", DocumentID: groupID, Operation: "update"})
	return
}

// updateTasks reads the ledger and writes back the edited copy in one unit of
// work. edit receives a copy it may modify.
func (s *GroupService) updateTasks(ctx context.Context, groupID string, edit func([]Task) ([]Task, error)) error {
	return s.unit.run(ctx, func(tx persistence.Store) error {
		doc, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return mapRepoError(EntityGroup, groupID, "read group", err)
		}
		tasks, err := edit(slices.Clone(toGroup(doc).Tasks))
		if err != nil {
			return err
		}
		if _, err := tx.UpdateGroup(ctx, doc.ID, persistence.GroupPatch{Tasks: toPersistenceTasks(tasks)}); err != nil {
			return mapRepoError(EntityGroup, doc.ID, "update group", err)
		}
		return nil
	})
}

func canToggle(principal Principal, groupID string) bool {
	switch principal.Role {
	case RoleOperator:
		return true
	case RoleLeader:
		return groupID != "" && principal.GroupID == groupID
	}
	return false
}

// FindGroupByAccessCode resolves a leader's access code to the group and a
// leader principal for it. Codes compare trimmed and case-insensitively.
func (s *GroupService) FindGroupByAccessCode(ctx context.Context, code string) (group Group, principal Principal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "FindGroupByAccessCode")
	defer func() {
		logOutcome(ctx, logger.With("group_id", group.ID), err, "access code rejected", "access code accepted")
	}()

	candidate := []byte(strings.ToUpper(strings.TrimSpace(code)))
	if len(candidate) == 0 {
		err = ErrUnauthorized
		return
	}

	docs, err := s.repo.ListGroups(ctx)
	if err != nil {
		err = &PersistenceError{Op: "list groups", Err: err}
		return
	}

	found := false
	for _, doc := range docs {
		g := toGroup(doc)
		stored := []byte(strings.ToUpper(g.AccessCode))
		if len(stored) == 0 {
			continue
		}
		// No early exit: every stored code is compared.
		if subtle.ConstantTimeCompare(stored, candidate) == 1 && !found {
			group = g
			found = true
		}
	}
	if !found {
		err = ErrUnauthorized
		return
	}

	principal = Principal{Label: group.Name, Role: RoleLeader, GroupID: group.ID}
	return
}
