//go:build linux && (amd64 || arm64)

package alsa

import "unsafe"

var (
	_ [376]byte = [unsafe.Sizeof(ctlCardInfo{})]byte{}
	_ [288]byte = [unsafe.Sizeof(pcmInfo{})]byte{}
	_ [608]byte = [unsafe.Sizeof(hwParams{})]byte{}
)

const (
	ioctlCardInfo      = 0x81785501
	ioctlPCMNextDevice = 0x80045530
	ioctlPCMInfo       = 0xc1205531
	ioctlHwRefine      = 0xc2604110
)

type hwParams struct {
	flags     uint32
	masks     [paramLastMask + 1]mask
	mres      [5]mask
	intervals [lastInterval - firstInterval + 1]interval
	ires      [9]interval
	rmask     uint32
	cmask     uint32
	info      uint32
	msbits    uint32
	rateNum   uint32
	rateDen   uint32
	fifoSize  uint64
	reserved  [64]byte
}
