package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// MatChecksum generates a deterministic checksum for a Mat, used to
// verify that a transform left an input untouched.
//
// Arguments:
// - mat: The Mat to compute a checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string.
//
// Example:
//
// ```go
//
//	checksum := MatChecksum(frame)
//	fmt.Printf("Frame checksum: %s\n", checksum)
//
// ```
func MatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, _ := mat.DataPtrUint8()
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}
