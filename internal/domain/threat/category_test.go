package threat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryProfiles(t *testing.T) {
	assert.Equal(t, SeverityCritical, CategorySQLInjection.DefaultSeverity())
	assert.True(t, CategorySQLInjection.IsInjection())
	assert.True(t, CategorySQLInjection.RequiresBlocking())
	assert.True(t, CategorySQLInjection.RequiresNotification())

	assert.Equal(t, SeverityMedium, CategoryWeakPassword.DefaultSeverity())
	assert.False(t, CategoryWeakPassword.IsInjection())
	assert.False(t, CategoryWeakPassword.RequiresBlocking())
	assert.False(t, CategoryWeakPassword.RequiresAudit())

	assert.True(t, CategoryPathTraversal.IsFileRelated())
	assert.False(t, CategoryCrossSiteScripting.IsInjection())

	// Unknown categories resolve to a medium default rather than panicking.
	unknown := Category("made_up")
	assert.Equal(t, SeverityMedium, unknown.DefaultSeverity())
	assert.False(t, unknown.RequiresBlocking())
}

func TestAllCategoriesHaveProfiles(t *testing.T) {
	for _, c := range AllCategories() {
		_, ok := categoryProfiles[c]
		assert.True(t, ok, "category %s has no profile", c)
	}
}

func TestSeverityLevels(t *testing.T) {
	assert.Less(t, SeverityLow.Level(), SeverityMedium.Level())
	assert.Less(t, SeverityMedium.Level(), SeverityHigh.Level())
	assert.Less(t, SeverityHigh.Level(), SeverityCritical.Level())
}
