package socialcontent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttachmentInput describes one slot of a parent's attachment set.
//
// New attachments leave ID nil and carry either an Upload (media) or a text
// Body. Existing attachments set ID; with Deleted they are removed, otherwise
// their Position and Body are updated.
type AttachmentInput struct {
	ID       *uuid.UUID
	Upload   *Upload
	Category Category
	Body     string
	Position int
	Deleted  bool
}

// AttachmentLifecycle manages the attachment set of posts and articles.
// Pending parents delete attachments and their files immediately; published
// parents only mark them and leave the bytes for the sweep.
type AttachmentLifecycle struct {
	repo   Repository
	store  *ContentStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAttachmentLifecycle creates an AttachmentLifecycle.
func NewAttachmentLifecycle(repo Repository, store *ContentStore, logger *slog.Logger, now func() time.Time) *AttachmentLifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &AttachmentLifecycle{repo: repo, store: store, logger: logger, now: now}
}

// Save adds new attachments to parent. All uploads are ingested in a single
// call before any attachment row is written. Inputs flagged Deleted are
// routed to Delete once the new attachments exist.
func (l *AttachmentLifecycle) Save(ctx context.Context, parent Parent, inputs []AttachmentInput) ([]*Attachment, error) {
	if parent.State == EditorialStateRemoved {
		return nil, &AttachmentError{ParentID: parent.ID, Op: "save", Err: ErrConflict}
	}

	var creates []AttachmentInput
	var deletes []uuid.UUID
	for i, in := range inputs {
		switch {
		case in.Deleted:
			if in.ID == nil {
				return nil, invalidInput("attachment %d: delete requires an id", i)
			}
			deletes = append(deletes, *in.ID)
		case in.ID != nil:
			return nil, invalidInput("attachment %d: existing attachments are changed with Update", i)
		default:
			creates = append(creates, in)
		}
	}

	created, err := l.create(ctx, parent, creates)
	if err != nil {
		return nil, err
	}
	if len(deletes) > 0 {
		if err := l.Delete(ctx, parent, deletes); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Update applies a full edit of parent's attachment set. New attachments are
// created first, then existing ones are updated, and deletions run last so a
// failure part way keeps the previous set readable.
func (l *AttachmentLifecycle) Update(ctx context.Context, parent Parent, inputs []AttachmentInput) ([]*Attachment, error) {
	if parent.State == EditorialStateRemoved {
		return nil, &AttachmentError{ParentID: parent.ID, Op: "update", Err: ErrConflict}
	}

	var creates []AttachmentInput
	var deletes []uuid.UUID
	changes := make(map[uuid.UUID]AttachmentInput)
	for i, in := range inputs {
		switch {
		case in.ID == nil && in.Deleted:
			return nil, invalidInput("attachment %d: delete requires an id", i)
		case in.ID == nil:
			creates = append(creates, in)
		case in.Upload != nil:
			return nil, invalidInput("attachment %d: existing attachment cannot take a new upload", i)
		case in.Deleted:
			deletes = append(deletes, *in.ID)
		default:
			changes[*in.ID] = in
		}
	}

	var updates []*Attachment
	if len(changes) > 0 {
		ids := make([]uuid.UUID, 0, len(changes))
		for id := range changes {
			ids = append(ids, id)
		}
		current, err := l.ownedAttachments(ctx, parent, ids, false)
		if err != nil {
			return nil, err
		}
		now := l.now().UTC()
		for _, a := range current {
			in := changes[a.ID]
			a.Position = in.Position
			if a.Category == CategoryText {
				if strings.TrimSpace(in.Body) == "" {
					return nil, invalidInput("attachment %s: text body is empty", a.ID)
				}
				a.Body = in.Body
			}
			a.UpdatedAt = now
			updates = append(updates, a)
		}
	}

	if _, err := l.create(ctx, parent, creates); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := l.repo.UpdateAttachments(ctx, updates); err != nil {
			return nil, &AttachmentError{ParentID: parent.ID, Op: "update", Err: err}
		}
	}
	if len(deletes) > 0 {
		if err := l.Delete(ctx, parent, deletes); err != nil {
			return nil, err
		}
	}
	return l.List(ctx, parent.ID)
}

// Delete removes attachments from parent. A pending parent hard deletes; any
// other live parent soft deletes the attachments and the files nothing else
// references.
func (l *AttachmentLifecycle) Delete(ctx context.Context, parent Parent, ids []uuid.UUID) error {
	switch parent.State {
	case EditorialStateRemoved:
		return &AttachmentError{ParentID: parent.ID, Op: "delete", Err: ErrConflict}
	case EditorialStatePending:
		return l.HardDelete(ctx, parent, ids)
	}

	attachments, err := l.ownedAttachments(ctx, parent, ids, false)
	if err != nil {
		return err
	}
	return l.softDelete(ctx, parent, attachments)
}

// HardDelete removes attachments and purges their unreferenced files at once.
// Only pending parents allow it.
func (l *AttachmentLifecycle) HardDelete(ctx context.Context, parent Parent, ids []uuid.UUID) error {
	if parent.State != EditorialStatePending {
		return &AttachmentError{ParentID: parent.ID, Op: "hard_delete", Err: fmt.Errorf("%w: parent is %s", ErrConflict, parent.State)}
	}
	attachments, err := l.ownedAttachments(ctx, parent, ids, true)
	if err != nil {
		return err
	}
	return l.hardDelete(ctx, parent, attachments)
}

// List returns the live attachments of a parent ordered by position.
func (l *AttachmentLifecycle) List(ctx context.Context, parentID uuid.UUID) ([]*Attachment, error) {
	attachments, err := l.repo.ListAttachments(ctx, parentID, false)
	if err != nil {
		return nil, &AttachmentError{ParentID: parentID, Op: "list", Err: err}
	}
	sortByPosition(attachments)
	return attachments, nil
}

// Remove releases every attachment of a parent that is being removed. parent
// carries the state it had before removal, which decides hard or soft delete.
func (l *AttachmentLifecycle) Remove(ctx context.Context, parent Parent) error {
	if parent.State == EditorialStateRemoved {
		return nil
	}
	attachments, err := l.repo.ListAttachments(ctx, parent.ID, true)
	if err != nil {
		return &AttachmentError{ParentID: parent.ID, Op: "remove", Err: err}
	}
	if len(attachments) == 0 {
		return nil
	}
	if parent.State == EditorialStatePending {
		return l.hardDelete(ctx, parent, attachments)
	}
	live := attachments[:0]
	for _, a := range attachments {
		if a.Purge.IsActive() {
			live = append(live, a)
		}
	}
	return l.softDelete(ctx, parent, live)
}

func (l *AttachmentLifecycle) create(ctx context.Context, parent Parent, inputs []AttachmentInput) ([]*Attachment, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var uploads []Upload
	for i, in := range inputs {
		if in.Upload != nil {
			uploads = append(uploads, *in.Upload)
			continue
		}
		if in.Category != "" && in.Category != CategoryText {
			return nil, invalidInput("attachment %d: %s attachment requires an upload", i, in.Category)
		}
		if strings.TrimSpace(in.Body) == "" {
			return nil, invalidInput("attachment %d: text body is empty", i)
		}
	}

	var ingested *ingestResult
	var files []*StoredFile
	if len(uploads) > 0 {
		var err error
		ingested, err = l.store.ingest(ctx, uploads)
		if err != nil {
			return nil, &AttachmentError{ParentID: parent.ID, Op: "ingest", Err: err}
		}
		files = ingested.files
	}

	now := l.now().UTC()
	attachments := make([]*Attachment, 0, len(inputs))
	next := 0
	for _, in := range inputs {
		a := &Attachment{
			ID:         uuid.New(),
			ParentID:   parent.ID,
			ParentKind: parent.Kind,
			Position:   in.Position,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if in.Upload != nil {
			file := files[next]
			next++
			a.FileID = &file.ID
			a.Category = file.Category
		} else {
			a.Category = CategoryText
			a.Body = in.Body
		}
		attachments = append(attachments, a)
	}

	if err := l.repo.CreateAttachments(ctx, attachments); err != nil {
		if ingested != nil {
			if undoErr := l.undoIngest(ctx, ingested); undoErr != nil {
				l.logger.Error("failed to release files of unsaved attachments", "parent_id", parent.ID, "error", undoErr)
			}
		}
		return nil, &AttachmentError{ParentID: parent.ID, Op: "create", Err: err}
	}
	return attachments, nil
}

// undoIngest releases what an ingest did for attachments that were never
// written: records it created are purged once nothing references them, and
// records it revived go back to pending purge.
func (l *AttachmentLifecycle) undoIngest(ctx context.Context, res *ingestResult) error {
	remaining := res.created
	for len(remaining) > 0 {
		// Media go first; their covers are free on the next round.
		orphans, err := l.unreferenced(ctx, remaining, false)
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			break
		}
		if err := l.store.Purge(ctx, orphans); err != nil {
			return err
		}
		remaining = subtractIDs(remaining, orphans)
	}

	idle, err := l.unreferenced(ctx, res.revived, true)
	if err != nil {
		return err
	}
	return l.store.MarkForDeletion(ctx, idle, l.now())
}

// ownedAttachments loads ids and checks they belong to parent. Unless
// includePending is set, attachments pending purge count as missing.
func (l *AttachmentLifecycle) ownedAttachments(ctx context.Context, parent Parent, ids []uuid.UUID, includePending bool) ([]*Attachment, error) {
	found, err := l.repo.GetAttachments(ctx, ids)
	if err != nil {
		return nil, &AttachmentError{ParentID: parent.ID, Op: "get", Err: err}
	}
	byID := make(map[uuid.UUID]*Attachment, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]*Attachment, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok || a.ParentID != parent.ID || (!includePending && !a.Purge.IsActive()) {
			return nil, &AttachmentError{ParentID: parent.ID, Op: "get", Err: fmt.Errorf("%w: %s", ErrAttachmentNotFound, id)}
		}
		out = append(out, a)
	}
	return out, nil
}

func (l *AttachmentLifecycle) softDelete(ctx context.Context, parent Parent, attachments []*Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	if err := l.repo.MarkAttachmentsForPurge(ctx, attachmentIDs(attachments), l.now().UTC()); err != nil {
		return &AttachmentError{ParentID: parent.ID, Op: "mark_for_purge", Err: err}
	}
	if err := l.releaseFiles(ctx, fileIDs(attachments), false); err != nil {
		return &AttachmentError{ParentID: parent.ID, Op: "mark_for_purge", Err: err}
	}
	l.logger.Info("attachments marked for purge", "parent_id", parent.ID, "count", len(attachments))
	return nil
}

func (l *AttachmentLifecycle) hardDelete(ctx context.Context, parent Parent, attachments []*Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	if err := l.repo.DeleteAttachments(ctx, attachmentIDs(attachments)); err != nil {
		return &AttachmentError{ParentID: parent.ID, Op: "delete", Err: err}
	}
	if err := l.releaseFiles(ctx, fileIDs(attachments), true); err != nil {
		return &AttachmentError{ParentID: parent.ID, Op: "purge", Err: err}
	}
	l.logger.Info("attachments deleted", "parent_id", parent.ID, "count", len(attachments))
	return nil
}

// releaseFiles lets go of candidate files no live record references, then of
// the covers of the files it let go. With purge, files nothing references at
// all are purged at once; the rest are marked and left for the sweep.
func (l *AttachmentLifecycle) releaseFiles(ctx context.Context, candidates []uuid.UUID, purge bool) error {
	if len(candidates) == 0 {
		return nil
	}
	files, err := l.repo.GetFiles(ctx, candidates)
	if err != nil {
		return err
	}
	released, err := l.release(ctx, candidates, purge)
	if err != nil || len(released) == 0 {
		return err
	}

	isReleased := make(map[uuid.UUID]bool, len(released))
	for _, id := range released {
		isReleased[id] = true
	}
	var covers []uuid.UUID
	for _, f := range files {
		if isReleased[f.ID] && f.CoverID != nil && !isReleased[*f.CoverID] {
			covers = append(covers, *f.CoverID)
		}
	}
	if len(covers) == 0 {
		return nil
	}
	_, err = l.release(ctx, uniqueIDs(covers), purge)
	return err
}

func (l *AttachmentLifecycle) release(ctx context.Context, ids []uuid.UUID, purge bool) ([]uuid.UUID, error) {
	released, err := l.unreferenced(ctx, ids, true)
	if err != nil || len(released) == 0 {
		return nil, err
	}

	mark := released
	if purge {
		orphans, err := l.unreferenced(ctx, released, false)
		if err != nil {
			return nil, err
		}
		if err := l.store.Purge(ctx, orphans); err != nil {
			return nil, err
		}
		mark = subtractIDs(released, orphans)
	}
	if err := l.store.MarkForDeletion(ctx, mark, l.now()); err != nil {
		return nil, err
	}
	return released, nil
}

func (l *AttachmentLifecycle) unreferenced(ctx context.Context, ids []uuid.UUID, liveOnly bool) ([]uuid.UUID, error) {
	referenced, err := l.repo.ReferencedFileIDs(ctx, ids, liveOnly)
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, id := range ids {
		if !referenced[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func sortByPosition(attachments []*Attachment) {
	sort.SliceStable(attachments, func(i, j int) bool {
		if attachments[i].Position != attachments[j].Position {
			return attachments[i].Position < attachments[j].Position
		}
		return attachments[i].CreatedAt.Before(attachments[j].CreatedAt)
	})
}

func attachmentIDs(attachments []*Attachment) []uuid.UUID {
	ids := make([]uuid.UUID, len(attachments))
	for i, a := range attachments {
		ids[i] = a.ID
	}
	return ids
}

func fileIDs(attachments []*Attachment) []uuid.UUID {
	var ids []uuid.UUID
	for _, a := range attachments {
		if a.FileID != nil {
			ids = append(ids, *a.FileID)
		}
	}
	return uniqueIDs(ids)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func subtractIDs(ids, remove []uuid.UUID) []uuid.UUID {
	drop := make(map[uuid.UUID]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	var out []uuid.UUID
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
