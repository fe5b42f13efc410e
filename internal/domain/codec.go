package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeStrict unmarshals raw into v, rejecting unknown fields and trailing
// data. Failures come back as a ValidationError for collection c.
func DecodeStrict(c Collection, raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewValidationError(c, "", err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return NewValidationError(c, "", "unexpected data after payload")
	}
	return nil
}

// DecodeRecord decodes raw into the typed record for collection c.
func DecodeRecord(c Collection, raw []byte) (Record, error) {
	switch c {
	case CollectionPatients:
		var p Patient
		err := DecodeStrict(c, raw, &p)
		return p, err
	case CollectionConsultations:
		var r Consultation
		err := DecodeStrict(c, raw, &r)
		return r, err
	case CollectionMedicalRecords:
		var r MedicalRecord
		err := DecodeStrict(c, raw, &r)
		return r, err
	case CollectionImageAnalyses:
		var r ImageAnalysis
		err := DecodeStrict(c, raw, &r)
		return r, err
	case CollectionAnalytics:
		var r AnalyticsEvent
		err := DecodeStrict(c, raw, &r)
		return r, err
	}
	return nil, NewValidationError(c, "", "unknown collection")
}
