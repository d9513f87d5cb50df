package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pamana/notes/internal/model"
)

func typeRef(t model.SubjectType) *model.SubjectType { return &t }

var subjectTypes = []*model.SubjectType{nil, typeRef(model.SubjectGeneral), typeRef(model.SubjectMajor)}

func TestAllowedScopes(t *testing.T) {
	scopes, resolved := AllowedScopes(typeRef(model.SubjectMajor))
	assert.True(t, resolved)
	assert.Equal(t, []model.Scope{model.ScopeCourse}, scopes)

	scopes, resolved = AllowedScopes(typeRef(model.SubjectGeneral))
	assert.True(t, resolved)
	assert.Equal(t, []model.Scope{model.ScopePublic, model.ScopeSchool}, scopes)

	scopes, resolved = AllowedScopes(nil)
	assert.False(t, resolved)
	assert.Len(t, scopes, 3)
}

func TestDefaultScopeIsAlwaysAllowed(t *testing.T) {
	for _, st := range subjectTypes {
		assert.True(t, IsAllowed(DefaultScope(st), st), "type %v", st)
	}
	assert.Equal(t, model.ScopeCourse, DefaultScope(typeRef(model.SubjectMajor)))
	assert.Equal(t, model.ScopeSchool, DefaultScope(typeRef(model.SubjectGeneral)))
	assert.Equal(t, model.ScopeSchool, DefaultScope(nil))
}

func TestEffectiveScopeOnSubjectChange(t *testing.T) {
	currents := []model.Scope{model.ScopePublic, model.ScopeSchool, model.ScopeCourse, "bogus"}
	for _, st := range subjectTypes {
		for _, current := range currents {
			once := EffectiveScopeOnSubjectChange(current, st)
			twice := EffectiveScopeOnSubjectChange(once, st)
			assert.Equal(t, once, twice, "idempotent for %q", current)
			assert.True(t, IsAllowed(once, st))
			if IsAllowed(current, st) {
				assert.Equal(t, current, once)
			}
		}
	}
	assert.Equal(t, model.ScopeCourse, EffectiveScopeOnSubjectChange(model.ScopePublic, typeRef(model.SubjectMajor)))
	assert.Equal(t, model.ScopeSchool, EffectiveScopeOnSubjectChange(model.ScopeCourse, typeRef(model.SubjectGeneral)))
	assert.Equal(t, model.ScopePublic, EffectiveScopeOnSubjectChange(model.ScopePublic, typeRef(model.SubjectGeneral)))
}

func TestNormalisedNotesSatisfySubjectRule(t *testing.T) {
	subjects := []*model.Subject{
		{ID: 1, Name: "Data Structures", IsMajor: true, Course: "BSIT"},
		{ID: 2, Name: "Ethics", IsGeneral: true},
		{ID: 3, Name: "Orphan major", IsMajor: true},
	}
	for _, subject := range subjects {
		for _, scope := range []model.Scope{model.ScopePublic, model.ScopeSchool, model.ScopeCourse} {
			note := model.Note{Subject: subject, Visibility: EffectiveScopeOnSubjectChange(scope, subject.TypeRef())}
			require.NoError(t, note.Validate(), "subject %s scope %s", subject.Name, scope)
		}
	}
}

func TestQueueScope(t *testing.T) {
	q, err := QueueScope(model.RoleAdmin, "")
	require.NoError(t, err)
	assert.True(t, q.Unrestricted)

	q, err = QueueScope(model.RoleModerator, "BSIT")
	require.NoError(t, err)
	assert.Equal(t, Queue{Course: "BSIT"}, q)

	for _, role := range []model.Role{model.RoleStudent, model.RoleUnknown, "teacher"} {
		_, err = QueueScope(role, "BSIT")
		assert.ErrorIs(t, err, ErrNoQueueAccess)
	}
}

func TestQueueIncludes(t *testing.T) {
	bsit := model.Note{Subject: &model.Subject{ID: 1, IsMajor: true, Course: "BSIT"}}
	bscs := model.Note{Subject: &model.Subject{ID: 2, IsMajor: true, Course: "BSCS"}}
	general := model.Note{Subject: &model.Subject{ID: 3, IsGeneral: true}}

	mod := Queue{Course: "BSIT"}
	assert.True(t, mod.Includes(bsit))
	assert.False(t, mod.Includes(bscs))
	assert.False(t, mod.Includes(general))
	assert.False(t, Queue{}.Includes(general))

	admin := Queue{Unrestricted: true}
	for _, n := range []model.Note{bsit, bscs, general} {
		assert.True(t, admin.Includes(n))
	}
}

func TestCanView(t *testing.T) {
	approved := func(scope model.Scope) model.Note {
		return model.Note{Author: "a1", Visibility: scope, IsApproved: true,
			Subject: &model.Subject{ID: 1, IsMajor: true, Course: "BSIT"}}
	}
	anon := Viewer{}
	student := Viewer{Authenticated: true, SchoolID: "s1", Course: "BSIT", Role: model.RoleStudent}
	outsider := Viewer{Authenticated: true, SchoolID: "s2", Course: "BSCS", Role: model.RoleStudent}

	assert.True(t, CanView(approved(model.ScopePublic), anon))
	assert.False(t, CanView(approved(model.ScopeSchool), anon))
	assert.True(t, CanView(approved(model.ScopeSchool), outsider))
	assert.True(t, CanView(approved(model.ScopeCourse), student))
	assert.False(t, CanView(approved(model.ScopeCourse), outsider))

	pending := approved(model.ScopePublic)
	pending.IsApproved = false
	assert.False(t, CanView(pending, student))
	assert.True(t, CanView(pending, Viewer{Authenticated: true, SchoolID: "a1"}))
	assert.True(t, CanView(pending, Viewer{Authenticated: true, Role: model.RoleModerator}))
}
