package ticket

// ESC/POS control sequences for 80mm thermal printers.
var (
	escInit     = []byte{0x1b, '@'}
	alignCenter = []byte{0x1b, 'a', 1}
	alignLeft   = []byte{0x1b, 'a', 0}
	boldOn      = []byte{0x1b, 'E', 1}
	boldOff     = []byte{0x1b, 'E', 0}

	// GS ! n size selectors: 17 doubles width and height, 16 height only.
	sizeDouble       = []byte{0x1d, '!', 17}
	sizeDoubleHeight = []byte{0x1d, '!', 16}
	sizeNormal       = []byte{0x1d, '!', 0}

	// Partial cut with 3-dot feed.
	cut = []byte{0x1d, 'V', 66, 3}
)

// qrCode builds the GS ( k sequence chain that renders data as a native
// QR code: model 2, module size 6, error correction L, store, print.
func qrCode(data string) []byte {
	var b []byte
	b = append(b, 0x1d, '(', 'k', 4, 0, 49, 65, 50, 0)
	b = append(b, 0x1d, '(', 'k', 3, 0, 49, 67, 6)
	b = append(b, 0x1d, '(', 'k', 3, 0, 49, 69, 48)

	n := len(data) + 3
	b = append(b, 0x1d, '(', 'k', byte(n&0xff), byte(n>>8), 49, 80, 48)
	b = append(b, data...)

	b = append(b, 0x1d, '(', 'k', 3, 0, 49, 81, 48)
	return b
}
