package domain

import (
	"strings"
	"time"
)

// ImageAnalysis is the metadata and result for one uploaded image. ImageData
// is only populated on the way in; stored copies never carry the binary.
type ImageAnalysis struct {
	ImageID        string    `json:"imageId" bson:"imageId"`
	PatientID      string    `json:"patientId" bson:"patientId"`
	FileName       string    `json:"fileName,omitempty" bson:"fileName,omitempty"`
	FileSize       int64     `json:"fileSize,omitempty" bson:"fileSize,omitempty"`
	FileType       string    `json:"fileType,omitempty" bson:"fileType,omitempty"`
	AnalysisResult string    `json:"analysisResult,omitempty" bson:"analysisResult,omitempty"`
	ImageData      []byte    `json:"imageData" bson:"-"`
	BlobKey        string    `json:"blobKey,omitempty" bson:"blobKey,omitempty"`
	UploadedAt     time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

func (i ImageAnalysis) Collection() Collection { return CollectionImageAnalyses }
func (i ImageAnalysis) NaturalID() string      { return i.ImageID }
func (i ImageAnalysis) PatientRef() string     { return i.PatientID }
func (i ImageAnalysis) SortTime() time.Time    { return i.UploadedAt }

func (i ImageAnalysis) Validate() error {
	if strings.TrimSpace(i.ImageID) == "" {
		return NewValidationError(CollectionImageAnalyses, "imageId", "is required")
	}
	if strings.TrimSpace(i.PatientID) == "" {
		return NewValidationError(CollectionImageAnalyses, "patientId", "is required")
	}
	if i.FileSize < 0 {
		return NewValidationError(CollectionImageAnalyses, "fileSize", "cannot be negative")
	}
	return nil
}

// WithoutBinary returns a copy with the image bytes dropped.
func (i ImageAnalysis) WithoutBinary() ImageAnalysis {
	i.ImageData = nil
	return i
}

// BlobKeyFor is where the backend keeps the binary for an image.
func BlobKeyFor(patientID, imageID string) string {
	return "images/" + patientID + "/" + imageID
}
