package orientdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-mmap/mmap"
)

// A record file holds one cluster. It is a header followed by a series of
// frames, each:
//
//	uint64 - total length of the frame
//	uint64 - position within the cluster, or all 0xff when deleted
//	payload bytes
//
// Frames are append-only; deleting a record overwrites its position field
// with the tombstone marker. Space is reclaimed offline, never in place.
const (
	recordFileMagic      = uint64(0x4f524543) // "OREC"
	recordFileHeaderSize = int64(24)          // magic, used bytes, next position
	recordFrameOverhead  = int64(16)

	tombstone = ^uint64(0)
)

type recordFile struct {
	*mmap.File
	sync.Mutex

	name string

	// offsets of each live position into the file
	offsets map[int64]int64

	used         int64
	nextPosition int64
}

// openRecordFile opens or creates the cluster file and rebuilds the
// position index by walking the frames.
func openRecordFile(name string) (*recordFile, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	fresh := info.Size() < recordFileHeaderSize
	if fresh {
		if err := f.Truncate(recordFileHeaderSize + 4096); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.Close()

	m, err := mmap.OpenFile(name, mmap.Read|mmap.Write)
	if err != nil {
		return nil, err
	}

	rf := &recordFile{
		File:    m,
		name:    name,
		offsets: make(map[int64]int64),
	}

	if fresh {
		rf.writeUint64(0, recordFileMagic)
		rf.writeUint64(8, 0)
		rf.writeUint64(16, 0)
		return rf, nil
	}

	if rf.readUint64(0) != recordFileMagic {
		rf.File.Close()
		return nil, fmt.Errorf("%s is not a record file", name)
	}
	rf.used = int64(rf.readUint64(8))
	rf.nextPosition = int64(rf.readUint64(16))

	// Walk the frames to rebuild the position index.
	offset := recordFileHeaderSize
	end := recordFileHeaderSize + rf.used
	for offset < end {
		frameLen := int64(rf.readUint64(offset))
		if frameLen < recordFrameOverhead || offset+frameLen > end {
			rf.File.Close()
			return nil, fmt.Errorf("corrupt frame at offset %d in %s", offset, name)
		}
		position := rf.readUint64(offset + 8)
		if position != tombstone {
			rf.offsets[int64(position)] = offset
		}
		offset += frameLen
	}

	return rf, nil
}

// addRecord appends a frame and returns the record's position.
func (rf *recordFile) addRecord(data []byte) (int64, error) {
	rf.Lock()
	defer rf.Unlock()

	frameLen := recordFrameOverhead + int64(len(data))
	offset := recordFileHeaderSize + rf.used
	if err := rf.ensureLength(offset + frameLen); err != nil {
		return 0, err
	}

	position := rf.nextPosition
	rf.nextPosition++

	rf.writeUint64(offset, uint64(frameLen))
	rf.writeUint64(offset+8, uint64(position))
	rf.WriteAt(data, offset+16)

	rf.used += frameLen
	rf.writeUint64(8, uint64(rf.used))
	rf.writeUint64(16, uint64(rf.nextPosition))
	rf.File.Sync()

	rf.offsets[position] = offset
	return position, nil
}

// readRecord returns the payload stored at position.
func (rf *recordFile) readRecord(position int64) ([]byte, error) {
	rf.Lock()
	defer rf.Unlock()

	offset, exists := rf.offsets[position]
	if !exists {
		return nil, errors.New("record not found")
	}

	frameLen := int64(rf.readUint64(offset))
	data := make([]byte, frameLen-recordFrameOverhead)
	rf.ReadAt(data, offset+16)
	return data, nil
}

// updateRecord appends a replacement frame reusing the same position and
// tombstones the old one. The record keeps its identity across updates.
func (rf *recordFile) updateRecord(position int64, data []byte) error {
	rf.Lock()
	defer rf.Unlock()

	old, exists := rf.offsets[position]
	if !exists {
		return errors.New("record not found")
	}

	frameLen := recordFrameOverhead + int64(len(data))
	offset := recordFileHeaderSize + rf.used
	if err := rf.ensureLength(offset + frameLen); err != nil {
		return err
	}

	rf.writeUint64(offset, uint64(frameLen))
	rf.writeUint64(offset+8, uint64(position))
	rf.WriteAt(data, offset+16)

	rf.used += frameLen
	rf.writeUint64(8, uint64(rf.used))
	rf.writeUint64(old+8, tombstone)
	rf.File.Sync()

	rf.offsets[position] = offset
	return nil
}

// deleteRecord tombstones the frame at position.
func (rf *recordFile) deleteRecord(position int64) error {
	rf.Lock()
	defer rf.Unlock()

	offset, exists := rf.offsets[position]
	if !exists {
		return errors.New("record not found")
	}

	rf.writeUint64(offset+8, tombstone)
	rf.File.Sync()
	delete(rf.offsets, position)
	return nil
}

// scan visits every live record in position order of storage. The callback
// returning an error stops the walk.
func (rf *recordFile) scan(fn func(position int64, data []byte) error) error {
	rf.Lock()
	offset := recordFileHeaderSize
	end := recordFileHeaderSize + rf.used
	type frame struct {
		position int64
		data     []byte
	}
	var frames []frame
	for offset < end {
		frameLen := int64(rf.readUint64(offset))
		position := rf.readUint64(offset + 8)
		if position != tombstone {
			data := make([]byte, frameLen-recordFrameOverhead)
			rf.ReadAt(data, offset+16)
			frames = append(frames, frame{position: int64(position), data: data})
		}
		offset += frameLen
	}
	rf.Unlock()

	for _, fr := range frames {
		if err := fn(fr.position, fr.data); err != nil {
			return err
		}
	}
	return nil
}

// count returns the number of live records.
func (rf *recordFile) count() int {
	rf.Lock()
	defer rf.Unlock()
	return len(rf.offsets)
}

// ensureLength grows and remaps the file when length exceeds the mapping.
func (rf *recordFile) ensureLength(length int64) error {
	if int64(rf.File.Len()) >= length {
		return nil
	}

	length += 4096

	if err := rf.File.Close(); err != nil {
		return err
	}

	file, err := os.OpenFile(rf.name, os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	if err := file.Truncate(length); err != nil {
		file.Close()
		return err
	}
	file.Close()

	rf.File, err = mmap.OpenFile(rf.name, mmap.Read|mmap.Write)
	return err
}

func (rf *recordFile) readUint64(offset int64) uint64 {
	buf := make([]byte, 8)
	rf.ReadAt(buf, offset)
	return binary.LittleEndian.Uint64(buf)
}

func (rf *recordFile) writeUint64(offset int64, value uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	rf.WriteAt(buf, offset)
}
