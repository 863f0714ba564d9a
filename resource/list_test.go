package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestListAppendRequiresItemOrFields(t *testing.T) {
	l := NewList()
	var validation *ValidationError

	assert.True(t, errors.As(l.Append(nil), &validation))
	assert.True(t, errors.As(l.AppendObject(), &validation))
	assert.Equal(t, 0, l.Len())

	require.NoError(t, l.Append("x"))
	require.NoError(t, l.AppendObject(F("name", "y")))
	require.NoError(t, l.Insert(0, 1))
	require.NoError(t, l.InsertObject(1, F("name", "z")))
	assert.Equal(t, `[1,{"name":"z"},"x",{"name":"y"}]`, l.String())

	assert.True(t, errors.As(l.Insert(9, "bad"), &validation))
	assert.True(t, errors.As(l.Set(9, "bad"), &validation))
	assert.True(t, l.At(1).(*Object).Locked())
}

func TestEmptyListMarshalsAsArray(t *testing.T) {
	assert.Equal(t, "[]", NewList().String())
}

func TestListSourcePropagatesFromSelfLinks(t *testing.T) {
	src := newFakeSource()
	v, err := Parse([]byte(`[
		{"id":1,"links":[{"rel":"self","href":"items/1"}]},
		{"id":2},
		"text"
	]`))
	require.NoError(t, err)
	l := v.(*List)

	l.SetSource(nil)
	for _, o := range l.Objects() {
		assert.Nil(t, o.Source())
	}

	l.SetSource(NewLocation(src, "items"))
	objs := l.Objects()
	require.Len(t, objs, 2)
	url, err := objs[0].URL()
	require.NoError(t, err)
	assert.Equal(t, "items/1", url)
	assert.Nil(t, objs[1].Source())

	require.NoError(t, objs[0].Delete(context.Background()))
	assert.Equal(t, 1, src.count("DELETE items/1"))
}

func TestListRefresh(t *testing.T) {
	src := newFakeSource()
	src.resources["items"] = `[1]`
	v, err := NewLocation(src, "items").Get(context.Background())
	require.NoError(t, err)
	l := v.(*List)

	src.resources["items"] = `[1,2,3]`
	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, 3, l.Len())
}

func TestYAMLKeepsOrder(t *testing.T) {
	v, err := Parse([]byte(`{"z":1,"$type":"T","a":[true,"s",2.5,null]}`))
	require.NoError(t, err)
	out, err := yaml.Marshal(v)
	require.NoError(t, err)

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal(out, &doc))
	m := doc.Content[0]
	require.Len(t, m.Content, 6)
	assert.Equal(t, "z", m.Content[0].Value)
	assert.Equal(t, "$type", m.Content[2].Value)
	assert.Equal(t, "a", m.Content[4].Value)
	seq := m.Content[5]
	require.Len(t, seq.Content, 4)
	assert.Equal(t, "!!float", seq.Content[2].Tag)
	assert.Equal(t, "2.5", seq.Content[2].Value)
}
