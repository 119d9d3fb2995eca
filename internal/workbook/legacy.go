package workbook

import (
	"bytes"
	"errors"

	"github.com/richardlehane/mscfb"
)

// ErrLegacyFormat is returned by Open for BIFF workbooks saved by Excel 97-2003
var ErrLegacyFormat = errors.New("legacy .xls (BIFF) workbooks are not supported; save the file as .xlsx")

// oleSignature starts every OLE2 compound file, which includes password-protected .xlsx files
var oleSignature = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// isLegacyWorkbook reports whether data is a compound file holding a BIFF
// workbook stream. Encrypted .xlsx containers hold EncryptedPackage instead
// and are left to excelize.
func isLegacyWorkbook(data []byte) bool {
	if !bytes.HasPrefix(data, oleSignature) {
		return false
	}
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return false
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case "Workbook", "Book":
			return true
		}
	}
	return false
}
