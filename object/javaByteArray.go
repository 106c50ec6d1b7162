/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package object

import (
	"strings"
	"unicode"

	"jacobin/stringPool"
	"jacobin/types"
)

// GoStringFromJavaByteArray renders a Java byte[] (e.g. the compact
// backing store of a JEP 254 string) as a Go string.
func GoStringFromJavaByteArray(jbarr []types.JavaByte) string {
	var sb strings.Builder
	for _, b := range jbarr {
		sb.WriteByte(byte(b))
	}
	return sb.String()
}

func JavaByteArrayFromGoString(str string) []types.JavaByte {
	jbarr := make([]types.JavaByte, len(str))
	for i := 0; i < len(str); i++ {
		jbarr[i] = types.JavaByte(str[i])
	}
	return jbarr
}

func JavaByteArrayFromGoByteArray(gbarr []byte) []types.JavaByte {
	jbarr := make([]types.JavaByte, len(gbarr))
	for i, b := range gbarr {
		jbarr[i] = types.JavaByte(b)
	}
	return jbarr
}

func GoByteArrayFromJavaByteArray(jbarr []types.JavaByte) []byte {
	gbarr := make([]byte, len(jbarr))
	for i, b := range jbarr {
		gbarr[i] = byte(b)
	}
	return gbarr
}

// JavaByteArrayFromStringObject builds a byte[] from the interned string
// that a java/lang/String instance's "value" field (offset 0 in the
// layout NewStringObject builds) indexes in the stringPool.
func JavaByteArrayFromStringObject(obj *Object) []types.JavaByte {
	if obj == nil || obj.ClassName != "java/lang/String" {
		return nil
	}
	s, ok := obj.GetField("value")
	if !ok {
		return nil
	}
	return JavaByteArrayFromGoString(*stringPool.GetStringPointer(uint32(s.Ref())))
}

// JavaByteArrayFromStringPoolIndex looks up the interned string at
// index and returns it as a byte[].
func JavaByteArrayFromStringPoolIndex(index uint32) []types.JavaByte {
	if index >= stringPool.GetStringPoolSize() {
		return nil
	}
	return JavaByteArrayFromGoString(*stringPool.GetStringPointer(index))
}

func JavaByteArrayEquals(jbarr1, jbarr2 []types.JavaByte) bool {
	if jbarr1 == nil || jbarr2 == nil {
		return jbarr1 == nil && jbarr2 == nil
	}
	if len(jbarr1) != len(jbarr2) {
		return false
	}
	for i, b := range jbarr1 {
		if b != jbarr2[i] {
			return false
		}
	}
	return true
}

func JavaByteArrayEqualsIgnoreCase(jbarr1, jbarr2 []types.JavaByte) bool {
	if jbarr1 == nil || jbarr2 == nil {
		return jbarr1 == nil && jbarr2 == nil
	}
	if len(jbarr1) != len(jbarr2) {
		return false
	}
	for i, b := range jbarr1 {
		if unicode.ToLower(rune(b)) != unicode.ToLower(rune(jbarr2[i])) {
			return false
		}
	}
	return true
}
