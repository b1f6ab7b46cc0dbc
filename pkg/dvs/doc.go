// Package dvs decodes and encodes DVS event camera raw streams.
package dvs

// Raw stream files.
//
// A stream starts with an ASCII header of '%'-prefixed lines followed
// by bit-packed little-endian words. EVT2 and EVT3 headers end with a
// "% end" line, DAT headers end at the first unprefixed line.
//
// Header directives:
//   % format <NAME>;width=W;height=H;
//   % geometry WxH
//   % evt <major>.<minor>
//
// EVT2 word (4 bytes, type in the high nibble of the last byte):
//   CDOff(0x0)/CDOn(0x1):
//     timestampLow:6 (bits 22-27)
//     x:11           (bits 11-21)
//     y:11           (bits 0-10)
//   TimeHigh(0x8): 28-bit coarse time, time base = payload<<6.
//   ExtTrigger(0xA) and unknown types are skipped.
//
// EVT3 word (2 bytes, type in the high nibble of the second byte):
//   AddrY(0x0):     y:11, bit 11 system type.
//   AddrX(0x2):     x:11, bit 11 polarity. Emits one event.
//   VectBaseX(0x3): base column:11, bit 11 polarity.
//   Vect12(0x4)/Vect8(0x5): validity mask over the next 12/8 columns.
//   TimeLow(0x6):   12-bit fine time, absolute time = base + payload.
//   TimeHigh(0x8):  12-bit coarse time, time base = payload<<12.
//   Trigger, continuation and other types are skipped.
//
// TimeHigh payloads wrap around. Decoders count rollovers so
// reconstructed absolute time keeps increasing.
