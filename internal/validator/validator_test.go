package validator

import (
	"testing"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func newValidate() *govalidator.Validate {
	v := govalidator.New()
	v.SetTagName("binding")
	register(v)
	return v
}

func TestViolationTypeTag(t *testing.T) {
	v := newValidate()

	ok := model.ReportViolationRequest{SessionID: uuid.New(), Type: model.ViolationTabSwitch}
	require.NoError(t, v.Struct(ok))

	bad := model.ReportViolationRequest{SessionID: uuid.New(), Type: "COPY_PASTE"}
	err := v.Struct(bad)
	require.Error(t, err)

	fields := TranslateErrors(err)
	assert.Contains(t, fields["type"], "TAB_SWITCH")
}

func TestSessionUpdateTags(t *testing.T) {
	v := newValidate()

	finished := model.SessionStatusFinished
	off := model.WebcamOff
	require.NoError(t, v.Struct(model.UpdateSessionRequest{Status: &finished, WebcamStatus: &off}))
	require.NoError(t, v.Struct(model.UpdateSessionRequest{}))

	paused := model.SessionStatus("PAUSED")
	fields := TranslateErrors(v.Struct(model.UpdateSessionRequest{Status: &paused}))
	assert.Contains(t, fields, "status")

	blurry := model.WebcamStatus("blurry")
	fields = TranslateErrors(v.Struct(model.UpdateSessionRequest{WebcamStatus: &blurry}))
	assert.Contains(t, fields, "webcamStatus")
}

func TestRecordingStatusTag(t *testing.T) {
	v := newValidate()

	require.NoError(t, v.Struct(model.ToggleRecordingRequest{SessionID: uuid.New(), Status: model.RecordingActive}))

	fields := TranslateErrors(v.Struct(model.ToggleRecordingRequest{SessionID: uuid.New(), Status: "paused"}))
	assert.Equal(t, "status must be recording or stopped", fields["status"])
}

func TestTranslateNonValidationError(t *testing.T) {
	fields := TranslateErrors(assert.AnError)
	assert.Equal(t, assert.AnError.Error(), fields["detail"])
}
