package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	assert := assert.New(t)

	topics := NewTopics("intesis", "homeassistant")

	assert.Equal("intesis/bridge/state", topics.BridgeState())
	assert.Equal("intesis/SN1/state", topics.DeviceState("SN1"))
	assert.Equal("intesis/SN1/availability", topics.DeviceAvailability("SN1"))
	assert.Equal("intesis/SN1/fan_mode/set", topics.Command("SN1", CmdFanMode))
	assert.Equal("intesis/+/+/set", topics.CommandFilter())
	assert.Equal("homeassistant/climate/SN1/climate/config", topics.Discovery("climate", "SN1", "climate"))
}

func TestParseCommand(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	topics := NewTopics("intesis", "homeassistant")
	cmd, err := topics.ParseCommand("intesis/SN1234567/temperature/set", []byte("21.5"))
	require.NoError(err)

	assert.Equal("SN1234567", cmd.Serial, "serial extract")
	assert.Equal(CmdTemperature, cmd.Command, "command extract")
	assert.Equal("21.5", cmd.Payload)
}

func TestParseCommandFail(t *testing.T) {
	topics := NewTopics("intesis", "homeassistant")

	for _, topic := range []string{
		"intesis/SN1/state",
		"intesis/bridge/state",
		"other/SN1/mode/set",
		"intesis/SN1/mode/set/extra",
		"prefix/intesis/SN1/mode/set",
	} {
		_, err := topics.ParseCommand(topic, nil)
		assert.ErrorIs(t, err, ErrNotCommand, topic)
	}
}

func TestParseCommandQuotesBaseTopic(t *testing.T) {
	topics := NewTopics("a.b", "homeassistant")

	_, err := topics.ParseCommand("aXb/SN1/mode/set", nil)
	assert.ErrorIs(t, err, ErrNotCommand)

	cmd, err := topics.ParseCommand("a.b/SN1/mode/set", nil)
	require.NoError(t, err)
	assert.Equal(t, "SN1", cmd.Serial)
}

func TestTopicID(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("SN1234567", TopicID("SN1234567"))
	assert.Equal("SN_1", TopicID("SN 1"))
	assert.Equal("a_b", TopicID("a/+#b"))
	assert.Equal("unknown", TopicID(""))
}
