/*
	Package lvv provides types, constants, and functions that have no other dependencies
	and can be used by all packages within the large volume viewer cache.  This includes
	leveled logging, simple 3d geometry, and the error kinds shared by the tile cache and
	the mask/channel decoder.
*/
package lvv
