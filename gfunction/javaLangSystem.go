/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

package gfunction

import "time"

func Load_Lang_System() {
	MethodSignatures["java/lang/System.registerNatives()V"] = GMeth{
		ParamSlots: 0,
		GFunction:  justReturn,
	}

	MethodSignatures["java/lang/System.currentTimeMillis()J"] = GMeth{
		ParamSlots: 0,
		GFunction:  systemCurrentTimeMillis,
	}

	MethodSignatures["java/lang/System.nanoTime()J"] = GMeth{
		ParamSlots: 0,
		GFunction:  systemNanoTime,
	}

	MethodSignatures["java/lang/System.identityHashCode(Ljava/lang/Object;)I"] = GMeth{
		ParamSlots: 1,
		GFunction:  objectHashCode,
	}
}

func systemCurrentTimeMillis(params []interface{}) interface{} {
	return time.Now().UnixMilli()
}

func systemNanoTime(params []interface{}) interface{} {
	return time.Now().UnixNano()
}
