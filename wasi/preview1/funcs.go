package preview1

import (
	"context"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// Errno values from the preview1 ABI.
const (
	ErrnoSuccess uint32 = 0
	ErrnoBadf    uint32 = 8
	ErrnoFault   uint32 = 21
	ErrnoInval   uint32 = 28
)

const (
	filetypeUnknown      uint8 = 0
	filetypeCharacterDev uint8 = 2
	filetypeDirectory    uint8 = 3
	filetypeRegularFile  uint8 = 4
)

const (
	fdstatSize   = 24
	filestatSize = 64
	firstPreopen = 3
	allRights    = ^uint64(0)
)

func (s *Shim) ok(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) preopen(fd uint32) (Preopen, bool) {
	if fd < firstPreopen || fd-firstPreopen >= uint32(len(s.preopens)) {
		return Preopen{}, false
	}
	return s.preopens[fd-firstPreopen], true
}

func (s *Shim) filetype(fd uint32) uint8 {
	if fd <= 2 {
		return filetypeCharacterDev
	}
	if _, ok := s.preopen(fd); ok {
		return filetypeDirectory
	}
	s.mu.Lock()
	_, opened := s.opened[fd]
	s.mu.Unlock()
	if opened {
		return filetypeRegularFile
	}
	return filetypeUnknown
}

func (s *Shim) fdClose(_ context.Context, _ api.Module, stack []uint64) {
	s.mu.Lock()
	delete(s.opened, uint32(stack[0]))
	s.mu.Unlock()
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) fdFdstatGet(_ context.Context, mod api.Module, stack []uint64) {
	fd, ptr := uint32(stack[0]), uint32(stack[1])
	mem := mod.Memory()
	if !mem.Write(ptr, make([]byte, fdstatSize)) ||
		!mem.WriteByte(ptr, s.filetype(fd)) ||
		!mem.WriteUint64Le(ptr+8, allRights) ||
		!mem.WriteUint64Le(ptr+16, allRights) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) writeFilestat(mem api.Memory, ptr uint32, filetype uint8) uint32 {
	// nlink is 1; every other field stays zero.
	if !mem.Write(ptr, make([]byte, filestatSize)) ||
		!mem.WriteByte(ptr+16, filetype) ||
		!mem.WriteUint64Le(ptr+24, 1) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func (s *Shim) fdFilestatGet(_ context.Context, mod api.Module, stack []uint64) {
	fd, ptr := uint32(stack[0]), uint32(stack[1])
	stack[0] = uint64(s.writeFilestat(mod.Memory(), ptr, s.filetype(fd)))
}

// fdPrestatGet is the only call rejecting unknown descriptors; libc scans
// upward from fd 3 until EBADF.
func (s *Shim) fdPrestatGet(_ context.Context, mod api.Module, stack []uint64) {
	fd, ptr := uint32(stack[0]), uint32(stack[1])
	p, ok := s.preopen(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	mem := mod.Memory()
	if !mem.WriteByte(ptr, 0) || !mem.WriteUint32Le(ptr+4, uint32(len(p.GuestPath))) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) fdPrestatDirName(_ context.Context, mod api.Module, stack []uint64) {
	fd, ptr, size := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
	p, ok := s.preopen(fd)
	if !ok {
		stack[0] = uint64(ErrnoSuccess)
		return
	}
	name := p.GuestPath
	if uint32(len(name)) > size {
		name = name[:size]
	}
	if !mod.Memory().WriteString(ptr, name) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

// fdRead reports end of file for every descriptor.
func (s *Shim) fdRead(_ context.Context, mod api.Module, stack []uint64) {
	if !mod.Memory().WriteUint32Le(uint32(stack[3]), 0) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) fdSeek(_ context.Context, mod api.Module, stack []uint64) {
	if !mod.Memory().WriteUint64Le(uint32(stack[3]), 0) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) fdWrite(_ context.Context, mod api.Module, stack []uint64) {
	fd, iovs, count, resultPtr := uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3])
	mem := mod.Memory()

	var b strings.Builder
	var total uint32
	for i := range count {
		base := iovs + i*8
		ptr, ok1 := mem.ReadUint32Le(base)
		length, ok2 := mem.ReadUint32Le(base + 4)
		if !ok1 || !ok2 {
			stack[0] = uint64(ErrnoFault)
			return
		}
		data, ok := mem.Read(ptr, length)
		if !ok {
			stack[0] = uint64(ErrnoFault)
			return
		}
		b.Write(data)
		total += length
	}

	if text := strings.TrimRight(strings.ToValidUTF8(b.String(), "\uFFFD"), "\n"); text != "" {
		switch fd {
		case 1:
			s.logger.Info("guest stdout", zap.String("text", text))
		case 2:
			s.logger.Warn("guest stderr", zap.String("text", text))
		}
	}

	if !mem.WriteUint32Le(resultPtr, total) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

// pathOpen hands out a fresh descriptor that reads as an empty file.
func (s *Shim) pathOpen(_ context.Context, mod api.Module, stack []uint64) {
	resultPtr := uint32(stack[8])
	s.mu.Lock()
	if s.nextFD == 0 {
		s.nextFD = firstPreopen + uint32(len(s.preopens))
	}
	fd := s.nextFD
	s.nextFD++
	s.opened[fd] = struct{}{}
	s.mu.Unlock()

	if !mod.Memory().WriteUint32Le(resultPtr, fd) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func (s *Shim) pathFilestatGet(_ context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(s.writeFilestat(mod.Memory(), uint32(stack[4]), filetypeRegularFile))
}

// procExit records the code and unwinds the guest call. Unlike the stock
// proc_exit it leaves the module open, so the caller can still read what the
// guest produced.
func (s *Shim) procExit(_ context.Context, _ api.Module, stack []uint64) {
	code := uint32(stack[0])
	s.mu.Lock()
	s.exitCode = code
	s.exited = true
	s.mu.Unlock()
	s.logger.Debug("guest called proc_exit", zap.Uint32("code", code))
	panic(sys.NewExitError(code))
}
