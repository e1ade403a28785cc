// Package emutest builds tiny AArch64 guest images for tests.
package emutest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"sort"
)

// Instruction encodings.
const (
	RET       uint32 = 0xD65F03C0
	NOP       uint32 = 0xD503201F
	PushFrame uint32 = 0xA9BF7BFD // stp x29, x30, [sp, #-16]!
	PopFrame  uint32 = 0xA8C17BFD // ldp x29, x30, [sp], #16
)

// MOVZ encodes movz xd, #imm.
func MOVZ(rd int, imm uint16) uint32 {
	return 0xD2800000 | uint32(imm)<<5 | uint32(rd)
}

// MOVN encodes movn xd, #imm (xd = ^imm).
func MOVN(rd int, imm uint16) uint32 {
	return 0x92800000 | uint32(imm)<<5 | uint32(rd)
}

// MOV encodes mov xd, xm.
func MOV(rd, rm int) uint32 {
	return 0xAA0003E0 | uint32(rm)<<16 | uint32(rd)
}

// LDR encodes ldr xt, [xn, #off]; off must be a multiple of 8.
func LDR(rt, rn int, off uint32) uint32 {
	return 0xF9400000 | (off/8)<<10 | uint32(rn)<<5 | uint32(rt)
}

// BL encodes a call from pc to target.
func BL(pc, target uint64) uint32 {
	return 0x94000000 | uint32((int64(target)-int64(pc))/4)&0x3FFFFFF
}

// B encodes a branch from pc to target.
func B(pc, target uint64) uint32 {
	return 0x14000000 | uint32((int64(target)-int64(pc))/4)&0x3FFFFFF
}

// CBZ encodes cbz xt, target from pc.
func CBZ(rt int, pc, target uint64) uint32 {
	return 0xB4000000 | (uint32((int64(target)-int64(pc))/4)&0x7FFFF)<<5 | uint32(rt)
}

// Words encodes instructions little-endian.
func Words(insns ...uint32) []byte {
	out := make([]byte, 4*len(insns))
	for i, w := range insns {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

// Rela is a relocation with no symbol; Offset is relative to Image.Base.
type Rela struct {
	Offset uint64
	Type   elf.R_AARCH64
	Addend int64
}

// Image describes a single-segment static AArch64 executable.
type Image struct {
	Base    uint64            // virtual address of Code[0]
	Code    []byte            // loaded read/write/execute
	Entry   uint64            // offset into Code
	Symbols map[string]uint64 // name -> offset into Code
	Relocs  []Rela            // emitted as .rela.dyn
}

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
	relaSize = 24
	codeOff  = 0x80
)

// Bytes serializes the image.
func (img Image) Bytes() []byte {
	names := make([]string, 0, len(img.Symbols))
	for n := range img.Symbols {
		names = append(names, n)
	}
	sort.Strings(names)

	strtab := []byte{0}
	syms := []elf.Sym64{{}}
	for _, n := range names {
		syms = append(syms, elf.Sym64{
			Name:  uint32(len(strtab)),
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
			Shndx: 1,
			Value: img.Base + img.Symbols[n],
		})
		strtab = append(strtab, n...)
		strtab = append(strtab, 0)
	}

	shstrtab := []byte{0}
	shname := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, s...)
		shstrtab = append(shstrtab, 0)
		return off
	}

	var body bytes.Buffer
	align := func() {
		for body.Len()%8 != 0 {
			body.WriteByte(0)
		}
	}
	body.Write(make([]byte, codeOff))
	body.Write(img.Code)
	align()

	symOff := uint64(body.Len())
	binary.Write(&body, binary.LittleEndian, syms)
	strOff := uint64(body.Len())
	body.Write(strtab)
	align()

	relaOff := uint64(body.Len())
	for _, r := range img.Relocs {
		binary.Write(&body, binary.LittleEndian, elf.Rela64{
			Off:    img.Base + r.Offset,
			Info:   elf.R_INFO(0, uint32(r.Type)),
			Addend: r.Addend,
		})
	}

	sections := []elf.Section64{
		{},
		{
			Name: shname(".text"), Type: uint32(elf.SHT_PROGBITS),
			Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR | elf.SHF_WRITE),
			Addr:  img.Base, Off: codeOff, Size: uint64(len(img.Code)), Addralign: 4,
		},
		{
			Name: shname(".symtab"), Type: uint32(elf.SHT_SYMTAB),
			Off: symOff, Size: uint64(len(syms) * symSize), Link: 3, Info: 1,
			Addralign: 8, Entsize: symSize,
		},
		{
			Name: shname(".strtab"), Type: uint32(elf.SHT_STRTAB),
			Off: strOff, Size: uint64(len(strtab)), Addralign: 1,
		},
	}
	if len(img.Relocs) > 0 {
		sections = append(sections, elf.Section64{
			Name: shname(".rela.dyn"), Type: uint32(elf.SHT_RELA),
			Flags: uint64(elf.SHF_ALLOC),
			Off:   relaOff, Size: uint64(len(img.Relocs) * relaSize),
			Addralign: 8, Entsize: relaSize,
		})
	}
	shstrIdx := len(sections)
	sections = append(sections, elf.Section64{Name: shname(".shstrtab"), Type: uint32(elf.SHT_STRTAB)})

	align()
	sections[shstrIdx].Off = uint64(body.Len())
	sections[shstrIdx].Size = uint64(len(shstrtab))
	sections[shstrIdx].Addralign = 1
	body.Write(shstrtab)
	align()

	shOff := uint64(body.Len())
	binary.Write(&body, binary.LittleEndian, sections)

	out := body.Bytes()

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var head bytes.Buffer
	binary.Write(&head, binary.LittleEndian, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_AARCH64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.Base + img.Entry,
		Phoff:     ehdrSize,
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: shdrSize,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(shstrIdx),
	})
	binary.Write(&head, binary.LittleEndian, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_W | elf.PF_X),
		Off:    codeOff,
		Vaddr:  img.Base,
		Paddr:  img.Base,
		Filesz: uint64(len(img.Code)),
		Memsz:  uint64(len(img.Code)),
		Align:  16,
	})
	copy(out, head.Bytes())
	return out
}
