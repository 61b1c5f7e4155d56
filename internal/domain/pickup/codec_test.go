package pickup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityListCodec(t *testing.T) {
	start := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	list := []Availability{
		AvailabilityOf(Window{
			ID: "w1", PointID: "p1",
			StartTime: start, EndTime: start.Add(2 * time.Hour),
			Capacity: 5, Reserved: 5,
		}),
		AvailabilityOf(Window{
			ID: "w2", PointID: "p1",
			StartTime: start.Add(2 * time.Hour), EndTime: start.Add(4 * time.Hour),
			Capacity: 8, Reserved: 3,
		}),
	}

	decoded, err := decodeAvailabilityList(encodeAvailabilityList(list))
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, list, decoded)
	assert.True(t, decoded[0].IsFull, "derived fields must survive the round trip")
	assert.Equal(t, 5, decoded[1].Available)
}

func TestDecodeAvailabilityList_Corrupt(t *testing.T) {
	_, err := decodeAvailabilityList([]byte(`{"not":"a list"`))
	require.Error(t, err)
}
