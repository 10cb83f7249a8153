package sim

// inst is one 32-bit RV32I instruction word.
type inst uint32

func (i inst) opcode() uint32 { return uint32(i) & 0x7F }
func (i inst) rd() uint32     { return (uint32(i) >> 7) & 0x1F }
func (i inst) funct3() uint32 { return (uint32(i) >> 12) & 0x7 }
func (i inst) rs1() uint32    { return (uint32(i) >> 15) & 0x1F }
func (i inst) rs2() uint32    { return (uint32(i) >> 20) & 0x1F }
func (i inst) funct7() uint32 { return (uint32(i) >> 25) & 0x7F }

const (
	opLUI    = 0x37
	opAUIPC  = 0x17
	opJAL    = 0x6F
	opJALR   = 0x67
	opBranch = 0x63
	opLoad   = 0x03
	opStore  = 0x23
	opImm    = 0x13
	opReg    = 0x33
	opFence  = 0x0F
	opSystem = 0x73
)

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func (i inst) immI() uint32 { return uint32(signExtend(uint32(i)>>20, 12)) }

func (i inst) immS() uint32 {
	lo := (uint32(i) >> 7) & 0x1F
	hi := (uint32(i) >> 25) & 0x7F
	return uint32(signExtend(hi<<5|lo, 12))
}

// [12|10:5|4:1|11] << 1
func (i inst) immB() uint32 {
	v := uint32(i)
	imm := (v>>31)&1<<12 |
		(v>>25)&0x3F<<5 |
		(v>>8)&0xF<<1 |
		(v>>7)&1<<11
	return uint32(signExtend(imm, 13))
}

func (i inst) immU() uint32 { return uint32(i) & 0xFFFFF000 }

// [20|10:1|11|19:12] << 1
func (i inst) immJ() uint32 {
	v := uint32(i)
	imm := (v>>31)&1<<20 |
		(v>>21)&0x3FF<<1 |
		(v>>20)&1<<11 |
		(v>>12)&0xFF<<12
	return uint32(signExtend(imm, 21))
}
