/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

// Package excNames names the Java exception and error classes the core
// throws (spec.md §7). Keeping them as constants here, rather than
// inline string literals at each throw site, is what lets jvm's
// newVMException and classloader's error types share one source of
// truth for fully-qualified names.
package excNames

// JavaExceptionClass identifies an exception/error name used throughout
// the interpreter, verifier, and class-loading pipeline.
type JavaExceptionClass string

const (
	NullPointerException           JavaExceptionClass = "java/lang/NullPointerException"
	ArrayIndexOutOfBoundsException JavaExceptionClass = "java/lang/ArrayIndexOutOfBoundsException"
	ArithmeticException            JavaExceptionClass = "java/lang/ArithmeticException"
	ClassCastException             JavaExceptionClass = "java/lang/ClassCastException"
	NegativeArraySizeException     JavaExceptionClass = "java/lang/NegativeArraySizeException"
	OutOfMemoryError               JavaExceptionClass = "java/lang/OutOfMemoryError"
	StackOverflowError              JavaExceptionClass = "java/lang/StackOverflowError"
	LinkageError                    JavaExceptionClass = "java/lang/LinkageError"
	VerifyError                     JavaExceptionClass = "java/lang/VerifyError"
	NoClassDefFoundError             JavaExceptionClass = "java/lang/NoClassDefFoundError"
	IncompatibleClassChangeError     JavaExceptionClass = "java/lang/IncompatibleClassChangeError"
	ExceptionInInitializerError      JavaExceptionClass = "java/lang/ExceptionInInitializerError"
	ClassNotFoundException           JavaExceptionClass = "java/lang/ClassNotFoundException"
	IllegalMonitorStateException     JavaExceptionClass = "java/lang/IllegalMonitorStateException"
	InterruptedException             JavaExceptionClass = "java/lang/InterruptedException"
	IllegalArgumentException         JavaExceptionClass = "java/lang/IllegalArgumentException"
	UnsupportedOperationException    JavaExceptionClass = "java/lang/UnsupportedOperationException"
	CloneNotSupportedException       JavaExceptionClass = "java/lang/CloneNotSupportedException"
	NoSuchMethodError                JavaExceptionClass = "java/lang/NoSuchMethodError"
	NoSuchFieldError                 JavaExceptionClass = "java/lang/NoSuchFieldError"
	AbstractMethodError              JavaExceptionClass = "java/lang/AbstractMethodError"
	IOException                      JavaExceptionClass = "java/io/IOException"
)

func (j JavaExceptionClass) String() string { return string(j) }
