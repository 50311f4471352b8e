package producer

import (
	"fmt"

	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/changerec"
	"github.com/gluster/changelog/internal/gfid"
)

// emit is the common path for every fop: tag it with the current FopColor
// so the rollover drain can account for it, build+write its encoded record,
// mirror it into CSNAP while a barrier snapshot is in progress, and untag on
// the way out (spec.md §4.3/§4.5).
func (e *Engine) emit(rec *changerec.Record) error {
	color := e.barrier.tag()
	defer e.barrier.untag(color)

	enc, err := e.recorder.encode(rec)
	if err != nil {
		return err
	}
	if err := e.journal.append(enc); err != nil {
		return err
	}
	if e.barrier.isOn() {
		if err := e.barrier.writeCSnap(enc); err != nil {
			e.log.Warnw("csnap write failed", "error", err)
		}
	}
	return nil
}

// emitEntry additionally blocks the caller while a barrier snapshot is in
// progress: ENTRY fops are held back entirely rather than mirrored into
// CSNAP (spec.md §4.5: "entry-type fops are queued, not journaled twice").
func (e *Engine) emitEntry(rec *changerec.Record) error {
	done := make(chan struct{})
	if e.barrier.parkIfBarrier(func() { close(done) }) {
		<-done
	}
	return e.emit(rec)
}

func (e *Engine) emitData(target gfid.Gfid) error {
	if !e.slicer.shouldEmit(changerec.Data, target) {
		return nil
	}
	return e.emit(&changerec.Record{Type: changerec.Data, Target: target})
}

func (e *Engine) emitMetadata(target gfid.Gfid, fop changerec.FopCode) error {
	if !e.slicer.shouldEmit(changerec.Metadata, target) {
		return nil
	}
	return e.emit(&changerec.Record{Type: changerec.Metadata, Target: target, Fop: fop})
}

// Write records a DATA change on target, subject to slicing (spec.md §4.3
// step 2-4; multiple writes between rollovers collapse to one record).
func (e *Engine) Write(target gfid.Gfid) error { return e.emitData(target) }

// Setattr, Setxattr and Removexattr record METADATA changes.
func (e *Engine) Setattr(target gfid.Gfid) error     { return e.emitMetadata(target, changerec.FopSetattr) }
func (e *Engine) Setxattr(target gfid.Gfid) error    { return e.emitMetadata(target, changerec.FopSetxattr) }
func (e *Engine) Removexattr(target gfid.Gfid) error { return e.emitMetadata(target, changerec.FopRemovexattr) }

// Fsync syncs the live journal directly; unlike every other fop it builds
// no record, so nothing for it appears on the wire.
func (e *Engine) Fsync(gfid.Gfid) error { return e.journal.fsync() }

// Mknod, Mkdir and Create all share the mode/uid/gid extras layout (spec.md
// §4.7 entrySpec table).
func (e *Engine) Mknod(parent, target gfid.Gfid, basename string, mode, uid, gid uint32) error {
	return e.createLike(changerec.FopMknod, parent, target, basename, mode, uid, gid)
}

func (e *Engine) Mkdir(parent, target gfid.Gfid, basename string, mode, uid, gid uint32) error {
	return e.createLike(changerec.FopMkdir, parent, target, basename, mode, uid, gid)
}

func (e *Engine) Create(parent, target gfid.Gfid, basename string, mode, uid, gid uint32) error {
	return e.createLike(changerec.FopCreate, parent, target, basename, mode, uid, gid)
}

func (e *Engine) createLike(fop changerec.FopCode, parent, target gfid.Gfid, basename string, mode, uid, gid uint32) error {
	return e.emitEntry(&changerec.Record{
		Type: changerec.Entry, Fop: fop,
		Parent: parent, Target: target, Basename: basename,
		Mode: mode, UID: uid, GID: gid,
	})
}

// Unlink removes entry from parent under basename. deletedPath is recorded
// only when the caller has capture-del-path enabled; Engine leaves that
// policy decision to the caller (spec.md §6 `capture-del-path`).
func (e *Engine) Unlink(parent, entry gfid.Gfid, basename, deletedPath string) error {
	return e.emitEntry(&changerec.Record{
		Type: changerec.Entry, Fop: changerec.FopUnlink,
		Parent: parent, Target: entry, Basename: basename, DeletedPath: deletedPath,
	})
}

func (e *Engine) Rmdir(parent, entry gfid.Gfid, basename string) error {
	return e.emitEntry(&changerec.Record{
		Type: changerec.Entry, Fop: changerec.FopRmdir,
		Parent: parent, Target: entry, Basename: basename,
	})
}

func (e *Engine) Symlink(parent, entry gfid.Gfid, basename string) error {
	return e.emitEntry(&changerec.Record{
		Type: changerec.Entry, Fop: changerec.FopSymlink,
		Parent: parent, Target: entry, Basename: basename,
	})
}

func (e *Engine) Link(parent, entry gfid.Gfid, basename string) error {
	return e.emitEntry(&changerec.Record{
		Type: changerec.Entry, Fop: changerec.FopLink,
		Parent: parent, Target: entry, Basename: basename,
	})
}

// Rename journals one RENAME record carrying both endpoints; there is no
// separate entry gfid (spec.md §8 worked example S3).
func (e *Engine) Rename(oldParent gfid.Gfid, oldName string, newParent gfid.Gfid, newName string) error {
	return e.emitEntry(&changerec.Record{
		Type: changerec.Entry, Fop: changerec.FopRename,
		Rename: &changerec.RenameInfo{
			OldParent: oldParent, OldName: oldName,
			NewParent: newParent, NewName: newName,
		},
	})
}

// NotifyCreate, NotifyOpen and NotifyRelease push a live fd-lifecycle event
// straight onto RotBuf without touching the on-disk journal, for the
// realtime consumers that want fd tracking independent of rollover (spec.md
// §4.8 EventType CREATE/OPEN/RELEASE).
func (e *Engine) NotifyCreate(target gfid.Gfid, flags uint32) error {
	return e.publishLive(&eventrpc.Event{Type: eventrpc.EventCreate, Create: &eventrpc.CreateEvent{Gfid: target, Flags: flags}})
}

func (e *Engine) NotifyOpen(target gfid.Gfid, flags uint32) error {
	return e.publishLive(&eventrpc.Event{Type: eventrpc.EventOpen, Open: &eventrpc.OpenEvent{Gfid: target, Flags: flags}})
}

func (e *Engine) NotifyRelease(target gfid.Gfid) error {
	return e.publishLive(&eventrpc.Event{Type: eventrpc.EventRelease, Release: &eventrpc.ReleaseEvent{Gfid: target}})
}

func (e *Engine) publishLive(ev *eventrpc.Event) error {
	b, err := eventrpc.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("producer: encode live event: %w", err)
	}
	h, err := e.rotbuf.reserveWrite(b)
	if err != nil {
		return err
	}
	e.rotbuf.writeComplete(h)
	return nil
}
