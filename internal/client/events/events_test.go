package events

import (
	"testing"

	"github.com/atinyakov/imagedash/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTopic(t *testing.T) {
	var bus Bus
	var got []string

	unsubA := bus.SearchChanged.Subscribe(func(e SearchChanged) { got = append(got, "a:"+e.Query) })
	bus.SearchChanged.Subscribe(func(e SearchChanged) { got = append(got, "b:"+e.Query) })

	bus.SearchChanged.Publish(SearchChanged{Query: "cat"})
	unsubA()
	unsubA()
	bus.SearchChanged.Publish(SearchChanged{Query: "dog"})

	assert.Equal(t, []string{"a:cat", "b:cat", "b:dog"}, got)
}

func TestTopic_UnsubscribeDuringPublish(t *testing.T) {
	var topic Topic[ImageUploaded]
	calls := 0
	var unsub func()
	unsub = topic.Subscribe(func(ImageUploaded) {
		calls++
		unsub()
	})

	topic.Publish(ImageUploaded{Image: models.Image{Hash: "abc"}})
	topic.Publish(ImageUploaded{Image: models.Image{Hash: "def"}})

	assert.Equal(t, 1, calls)
}
