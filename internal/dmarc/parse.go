package dmarc

import (
	"bytes"
	"encoding/xml"

	// decode reports that declare a non UTF-8 encoding
	"github.com/emersion/go-message/charset"
)

// some reports contain invalid XML by adding an unclosed xs tag
const xsTag = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="http://dmarc.org/dmarc-xml/0.1">`

// Parse deserializes and normalizes an XML aggregate report.
// Every failure is returned as a *SchemaError.
func Parse(doc []byte) (*Feedback, error) {
	doc = bytes.ReplaceAll(doc, []byte(xsTag), []byte(""))

	var report xmlReport
	decoder := xml.NewDecoder(bytes.NewReader(doc))
	decoder.CharsetReader = charset.Reader
	if err := decoder.Decode(&report); err != nil {
		return nil, schemaErr(rootPath, err)
	}
	return report.normalize()
}
