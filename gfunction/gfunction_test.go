package gfunction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"jacobin/excNames"
	"jacobin/object"
)

func TestLoadAllRegistersExpectedSignatures(t *testing.T) {
	MethodSignatures = make(map[string]GMeth)
	LoadAll()

	for _, sig := range []string{
		"java/lang/Object.hashCode()I",
		"java/lang/Thread.sleep(J)V",
		"java/lang/System.currentTimeMillis()J",
		"java/lang/Class.getName()Ljava/lang/String;",
	} {
		if _, ok := MethodSignatures[sig]; !ok {
			t.Errorf("expected %s to be registered", sig)
		}
	}
}

func TestThreadSleepRejectsWrongType(t *testing.T) {
	result := threadSleep([]interface{}{"not a long"})
	errBlk, ok := IsErrBlk(result)
	assert.True(t, ok)
	assert.Equal(t, excNames.IOException, errBlk.ExceptionType)
}

func TestObjectHashCodeUsesMark(t *testing.T) {
	obj := object.NewObject(1, "java/lang/Object", nil, nil, nil)
	got := objectHashCode([]interface{}{obj})
	assert.Equal(t, int64(int32(obj.Mark)), got)
}

func TestClassGetNameReplacesSlashesWithDots(t *testing.T) {
	receiver := object.NewStringObject(0, "java/lang/String")
	got := classGetName([]interface{}{receiver})
	s, ok := got.(*object.Object)
	assert.True(t, ok)
	assert.Equal(t, "java.lang.String", object.GoString(s))
}

func TestClassIsInstanceDelegatesToSeam(t *testing.T) {
	old := ClassIsInstance
	defer func() { ClassIsInstance = old }()

	var seenClass string
	var seenObj *object.Object
	ClassIsInstance = func(className string, obj *object.Object) bool {
		seenClass = className
		seenObj = obj
		return true
	}

	receiver := object.NewStringObject(0, "java/lang/Object")
	target := object.NewObject(1, "java/lang/Object", nil, nil, nil)
	got := classIsInstance([]interface{}{receiver, target})

	assert.Equal(t, int64(1), got)
	assert.Equal(t, "java/lang/Object", seenClass)
	assert.Same(t, target, seenObj)
}

func TestClassGetSuperclassNilWhenSeamReportsNone(t *testing.T) {
	old := ClassSuperclassOf
	defer func() { ClassSuperclassOf = old }()

	ClassSuperclassOf = func(className string) (string, bool) { return "", false }
	receiver := object.NewStringObject(0, "java/lang/Object")
	got := classGetSuperclass([]interface{}{receiver})
	assert.Nil(t, got)
}

func TestClassGetSuperclassReturnsParentName(t *testing.T) {
	old := ClassSuperclassOf
	defer func() { ClassSuperclassOf = old }()

	ClassSuperclassOf = func(className string) (string, bool) {
		assert.Equal(t, "java/lang/Integer", className)
		return "java/lang/Number", true
	}
	receiver := object.NewStringObject(0, "java/lang/Integer")
	got := classGetSuperclass([]interface{}{receiver})
	assert.Equal(t, "java/lang/Number", got)
}
