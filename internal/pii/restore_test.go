package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRestoreRightInverseOfSanitize(t *testing.T) {
	text := "Alice paid Bob 300 dollars in Berlin, then Carol met Alice in Paris."
	doc := whitespaceDoc(text)
	entities := []ScoredEntity{
		entity(t, doc, "Alice", "PERSON", 0),
		entity(t, doc, "Bob", "PERSON", 0),
		entity(t, doc, "Berlin", "GPE", 0),
		entity(t, doc, "Carol", "PERSON", 0),
		entity(t, doc, "Alice", "PERSON", 1),
		entity(t, doc, "Paris", "GPE", 0),
	}

	sanitized, m := Sanitize(text, entities)
	assert.Equal(t, "[Name] paid [Name] 300 dollars in [Location], then [Name] met [Name] in [Location].", sanitized)

	// A rewrite that echoes every placeholder once, in order.
	rewritten := "[Name] sent [Name] 300 dollars while in [Location]; later [Name] saw [Name] in [Location]."
	restored, rep := Restore(rewritten, m)
	assert.Equal(t, "Alice sent Bob 300 dollars while in Berlin; later Carol saw Alice in Paris.", restored)
	assert.False(t, rep.Incomplete())
	assert.Equal(t, 6, rep.Restored)
	assert.Empty(t, rep.Unused)

	// Identity rewrite reproduces the original text exactly.
	identity, _ := Restore(sanitized, m)
	assert.Equal(t, text, identity)
}

func TestRestoreSurplusPlaceholdersStayUnresolved(t *testing.T) {
	text := "Call Bob tomorrow."
	doc := whitespaceDoc(text)
	_, m := Sanitize(text, []ScoredEntity{entity(t, doc, "Bob", "PERSON", 0)})

	restored, rep := Restore("[Name] should call [Name] and [Name].", m)
	assert.Equal(t, "Bob should call [Name] and [Name].", restored)
	assert.True(t, rep.Incomplete())
	assert.Equal(t, map[string]int{"[Name]": 2}, rep.Unresolved)
	assert.Equal(t, 1, rep.Restored)
}

func TestRestoreDroppedPlaceholdersAreNotReinserted(t *testing.T) {
	text := "Alice and Bob live in Rome."
	doc := whitespaceDoc(text)
	_, m := Sanitize(text, []ScoredEntity{
		entity(t, doc, "Alice", "PERSON", 0),
		entity(t, doc, "Bob", "PERSON", 0),
		entity(t, doc, "Rome", "GPE", 0),
	})

	restored, rep := Restore("Two people live in a city.", m)
	assert.Equal(t, "Two people live in a city.", restored)
	assert.False(t, rep.Incomplete())
	assert.Equal(t, map[string]int{"[Name]": 2, "[Location]": 1}, rep.Unused)

	restored, rep = Restore("[Name] lives somewhere.", m)
	assert.Equal(t, "Alice lives somewhere.", restored)
	assert.Equal(t, map[string]int{"[Name]": 1, "[Location]": 1}, rep.Unused)
}

func TestRestoreIgnoresUnmappedPlaceholders(t *testing.T) {
	text := "Bob is here."
	doc := whitespaceDoc(text)
	_, m := Sanitize(text, []ScoredEntity{entity(t, doc, "Bob", "PERSON", 0)})

	restored, rep := Restore("[Name] works at [Company].", m)
	assert.Equal(t, "Bob works at [Company].", restored)
	assert.False(t, rep.Incomplete(), "placeholders never recorded are not restoration gaps")
}

func TestRestoreDoesNotRescanInsertedValues(t *testing.T) {
	m := newPlaceholderMap()
	m.add("[Name]", "Ann [Location]")
	m.add("[Location]", "Oslo")

	restored, rep := Restore("[Name] from [Location]", m)
	assert.Equal(t, "Ann [Location] from Oslo", restored)
	assert.Equal(t, 2, rep.Restored)
}

func TestRestoreEmptyMap(t *testing.T) {
	restored, rep := Restore("nothing [Name] here", nil)
	assert.Equal(t, "nothing [Name] here", restored)
	assert.False(t, rep.Incomplete())

	restored, _ = Restore("nothing here", newPlaceholderMap())
	assert.Equal(t, "nothing here", restored)
}

func TestRestoreKeepsPlaceholdersAlreadyInInput(t *testing.T) {
	text := "Reply to [Name] about John Smith."
	doc := whitespaceDoc(text)
	e := entity(t, doc, "John Smith", "PERSON", 0)

	sanitized, m := Sanitize(text, []ScoredEntity{e})
	assert.Equal(t, "Reply to [Name] about [Name].", sanitized)
	assert.Equal(t, []string{"[Name]", "John Smith"}, m.Originals("[Name]"))
	assert.Equal(t, 1, m.Len())

	restored, rep := Restore(sanitized, m)
	assert.Equal(t, text, restored)
	assert.False(t, rep.Incomplete())

	restored, rep = Restore("About [Name], reply to [Name].", m)
	assert.Equal(t, "About [Name], reply to John Smith.", restored)
	assert.False(t, rep.Incomplete())
}

func TestRestoreAlreadySanitizedInputIsUnchanged(t *testing.T) {
	text := "[Name] met [Name] in [Location] on [Date]."

	sanitized, m := Sanitize(text, nil)
	assert.Equal(t, text, sanitized)
	assert.True(t, m.IsEmpty())

	restored, rep := Restore(sanitized, m)
	assert.Equal(t, text, restored)
	assert.False(t, rep.Incomplete())
}
