package uevent

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func rawUevent(fields ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("change@/devices/pci0000:00/0000:00:02.0/drm/card0")
	buf.WriteByte(0)
	for _, f := range fields {
		buf.WriteString(f)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestIsDrmEvent_MatchesDrmSubsystem(t *testing.T) {
	data := rawUevent("ACTION=change", "SUBSYSTEM=drm", "DEVNAME=dri/card0")
	assert.True(t, isDrmEvent(data))
}

func TestIsDrmEvent_IgnoresOtherSubsystems(t *testing.T) {
	data := rawUevent("ACTION=change", "SUBSYSTEM=pci", "DEVNAME=0000:00:02.0")
	assert.False(t, isDrmEvent(data))
}

func TestIsDrmEvent_MissingSubsystemField(t *testing.T) {
	data := rawUevent("ACTION=change", "DEVNAME=dri/card0")
	assert.False(t, isDrmEvent(data))
}
