package emulator

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ARM64 relocation types
const (
	R_AARCH64_ABS64     = 257  // Absolute 64-bit symbol reference
	R_AARCH64_GLOB_DAT  = 1025 // GOT entry for global data symbol
	R_AARCH64_JUMP_SLOT = 1026 // PLT GOT entry for function call
	R_AARCH64_RELATIVE  = 1027 // Position-independent data reference
)

// ELFInfo contains parsed ELF metadata
type ELFInfo struct {
	Path     string
	Type     elf.Type
	Entry    uint64
	Symbols  map[string]uint64 // symbol name -> virtual address (all symbols)
	Imports  map[string]uint64 // symbol name -> PLT stub address (external imports only)
	Segments []Segment
	BaseAddr uint64 // Load base address
	EndAddr  uint64 // End of loaded memory
}

// Segment represents a loadable ELF segment
type Segment struct {
	VAddr uint64
	Size  uint64 // File size
	MemSz uint64 // Memory size (may be larger due to .bss)
	Flags elf.ProgFlag
}

// LoadELFBase is the base address for position-independent images.
const LoadELFBase = 0x40000000 // 1GB

// LoadELF loads an ELF file and maps it into the emulator.
// Position-independent images (lowest vaddr below 0x10000) are relocated
// to LoadELFBase.
func (e *Emulator) LoadELF(path string) (*ELFInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ELF: %w", err)
	}
	info, err := e.LoadELFBytes(data, 0)
	if err != nil {
		return nil, err
	}
	info.Path = path
	return info, nil
}

// LoadELFBytes loads an in-memory ELF image. A loadBase of 0 keeps the
// image's own addresses unless it is position-independent.
func (e *Emulator) LoadELFBytes(data []byte, loadBase uint64) (*ELFInfo, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	if f.Machine != elf.EM_AARCH64 {
		return nil, fmt.Errorf("expected ARM64 (EM_AARCH64), got %v", f.Machine)
	}
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("expected little-endian ELF64, got %v %v", f.Class, f.Data)
	}

	fileBase := ^uint64(0)
	fileEnd := uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		fileBase = min(fileBase, prog.Vaddr)
		fileEnd = max(fileEnd, prog.Vaddr+prog.Memsz)
	}
	if fileBase == ^uint64(0) {
		return nil, fmt.Errorf("no PT_LOAD segments found")
	}

	var relocOffset uint64
	switch {
	case loadBase != 0:
		relocOffset = loadBase - fileBase
	case fileBase < 0x10000:
		relocOffset = LoadELFBase - fileBase
	}

	info := &ELFInfo{
		Type:     f.Type,
		Entry:    f.Entry + relocOffset,
		Symbols:  make(map[string]uint64),
		Imports:  make(map[string]uint64),
		BaseAddr: fileBase + relocOffset,
		EndAddr:  fileEnd + relocOffset,
	}

	if syms, err := f.DynamicSymbols(); err == nil {
		for _, sym := range syms {
			if sym.Value != 0 && sym.Name != "" {
				addSymbol(info.Symbols, sym.Name, sym.Value+relocOffset)
			}
		}
	}
	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			if sym.Value != 0 && sym.Name != "" && isAddressable(sym) {
				info.Symbols[sym.Name] = sym.Value + relocOffset
			}
		}
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		vaddr := prog.Vaddr + relocOffset
		info.Segments = append(info.Segments, Segment{
			VAddr: vaddr,
			Size:  prog.Filesz,
			MemSz: prog.Memsz,
			Flags: prog.Flags,
		})

		if err := e.mapRange(vaddr, prog.Memsz); err != nil {
			return nil, err
		}

		if prog.Filesz > 0 {
			seg := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(seg, 0); err != nil && err != io.EOF {
				return nil, fmt.Errorf("read segment at 0x%x: %w", vaddr, err)
			}
			if err := e.MemWrite(vaddr, seg); err != nil {
				return nil, fmt.Errorf("write segment at 0x%x: %w", vaddr, err)
			}
		}

		// .bss: memory size beyond file size is zero-filled
		if prog.Memsz > prog.Filesz {
			zeros := make([]byte, prog.Memsz-prog.Filesz)
			if err := e.MemWrite(vaddr+prog.Filesz, zeros); err != nil {
				return nil, fmt.Errorf("zero bss at 0x%x: %w", vaddr+prog.Filesz, err)
			}
		}
	}

	// PLT addresses first; relocations resolve external symbols to them.
	addPLTSymbols(f, relocOffset, info.Symbols, info.Imports)

	if err := e.applyRelocations(f, relocOffset, info.Imports); err != nil {
		return nil, fmt.Errorf("apply relocations: %w", err)
	}

	return info, nil
}

// mapRange maps the pages covering [addr, addr+size). Pages that are
// already mapped, such as those inside the fixed code region, are kept.
func (e *Emulator) mapRange(addr, size uint64) error {
	start := addr &^ (pageSize - 1)
	end := (addr + size + pageSize - 1) &^ (pageSize - 1)
	if e.MapRegion(start, end-start) == nil {
		return nil
	}
	for page := start; page < end; page += pageSize {
		if _, err := e.mu.MemRead(page, 1); err == nil {
			continue
		}
		if err := e.MapRegion(page, pageSize); err != nil {
			return fmt.Errorf("map page 0x%x: %w", page, err)
		}
	}
	return nil
}

func isAddressable(sym elf.Symbol) bool {
	switch elf.ST_TYPE(sym.Info) {
	case elf.STT_SECTION, elf.STT_FILE:
		return false
	}
	return true
}

// addSymbol stores name and its unversioned form (foo@@VER, foo@VER).
func addSymbol(m map[string]uint64, name string, addr uint64) {
	m[name] = addr
	if idx := strings.Index(name, "@"); idx > 0 {
		m[name[:idx]] = addr
	}
}

// addPLTSymbols adds PLT stub addresses for external symbols.
// Addresses are added to both symbols (for lookups) and imports (for stub installation).
func addPLTSymbols(f *elf.File, relocOffset uint64, symbols, imports map[string]uint64) {
	pltSec := f.Section(".plt")
	relaPlt := f.Section(".rela.plt")
	if pltSec == nil || relaPlt == nil {
		return
	}

	// Go skips STN_UNDEF at index 0
	dynSyms, err := f.DynamicSymbols()
	if err != nil {
		return
	}
	relaData, err := relaPlt.Data()
	if err != nil {
		return
	}

	// ARM64 PLT: 32-byte header, then 16-byte entries in .rela.plt order.
	pltBase := pltSec.Addr + relocOffset
	const pltHeaderSize = 32
	const pltEntrySize = 16

	entryIdx := 0
	for i := 0; i+24 <= len(relaData); i += 24 {
		rInfo := binary.LittleEndian.Uint64(relaData[i+8:])
		arrayIdx := int(rInfo>>32) - 1

		if arrayIdx >= 0 && arrayIdx < len(dynSyms) {
			sym := dynSyms[arrayIdx]
			if sym.Name != "" && sym.Value == 0 {
				pltAddr := pltBase + pltHeaderSize + uint64(entryIdx)*pltEntrySize
				addSymbol(symbols, sym.Name, pltAddr)
				addSymbol(imports, sym.Name, pltAddr)
			}
		}
		entryIdx++
	}
}

// applyRelocations processes ELF relocations to fix GOT entries.
// External symbols resolve to their PLT stub address from imports.
func (e *Emulator) applyRelocations(f *elf.File, relocOffset uint64, imports map[string]uint64) error {
	dynSyms, _ := f.DynamicSymbols()
	symAt := func(idx int) (elf.Symbol, bool) {
		if idx < 1 || idx > len(dynSyms) {
			return elf.Symbol{}, false
		}
		return dynSyms[idx-1], true
	}

	external := func(sym elf.Symbol) (uint64, bool) {
		name := sym.Name
		if idx := strings.Index(name, "@"); idx > 0 {
			name = name[:idx]
		}
		if name == "__stack_chk_guard" {
			return TLSBase + CanaryOffset, true
		}
		addr, ok := imports[name]
		return addr, ok
	}

	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}
		if sec.Name != ".rela.dyn" && sec.Name != ".rela.plt" {
			continue
		}

		data, err := sec.Data()
		if err != nil {
			return fmt.Errorf("read %s: %w", sec.Name, err)
		}

		// r_offset (8), r_info (8), r_addend (8)
		for i := 0; i+24 <= len(data); i += 24 {
			rOffset := binary.LittleEndian.Uint64(data[i:])
			rInfo := binary.LittleEndian.Uint64(data[i+8:])
			rAddend := binary.LittleEndian.Uint64(data[i+16:])

			relType := uint32(rInfo)
			sym, hasSym := symAt(int(rInfo >> 32))
			target := rOffset + relocOffset

			var resolved uint64
			switch relType {
			case R_AARCH64_RELATIVE:
				resolved = relocOffset + rAddend

			case R_AARCH64_GLOB_DAT, R_AARCH64_JUMP_SLOT, R_AARCH64_ABS64:
				if !hasSym {
					continue
				}
				addend := rAddend
				if relType != R_AARCH64_ABS64 {
					addend = 0
				}
				if sym.Value != 0 {
					resolved = sym.Value + relocOffset + addend
				} else if addr, ok := external(sym); ok {
					resolved = addr + addend
				} else {
					// Lazy JUMP_SLOT entries keep pointing at the PLT header.
					continue
				}

			default:
				continue
			}

			if err := e.MemWriteU64(target, resolved); err != nil {
				return fmt.Errorf("relocate 0x%x: %w", target, err)
			}
		}
	}

	return nil
}

// FindSymbol looks up a symbol by name, returns 0 if not found
func (info *ELFInfo) FindSymbol(name string) uint64 {
	return info.Symbols[name]
}

// ImportNames returns the imported symbol names in sorted order,
// unversioned aliases included.
func (info *ELFInfo) ImportNames() []string {
	names := make([]string, 0, len(info.Imports))
	for name := range info.Imports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsReadable returns true if the segment is readable
func (s *Segment) IsReadable() bool {
	return s.Flags&elf.PF_R != 0
}

// IsExecutable returns true if the segment is executable
func (s *Segment) IsExecutable() bool {
	return s.Flags&elf.PF_X != 0
}

// IsWritable returns true if the segment is writable
func (s *Segment) IsWritable() bool {
	return s.Flags&elf.PF_W != 0
}
