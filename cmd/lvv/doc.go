/*
lvv keeps the neighborhood of a moving camera focus resident while browsing large
3d datasets stored as trees of mask/channel tiles.

A dataset is a directory or bucket (file:///..., gs://bucket/prefix) holding a
volume.yaml descriptor and one directory per tile.  Each tile directory holds a
mask file and optionally a channel file, either of which may be stored compressed
with a .zst, .gz or .sz suffix.

Commands

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	lvv about

Prints the version of the lvv tools.

	lvv serve <config.toml>

Opens the dataset named in the TOML configuration and serves the cache over HTTP.
POST a focus point to /api/cache/focus and a zoom level to /api/cache/zoom, then
GET /api/cache/keys or /api/cache/stats to see what is resident.

	lvv keys <dataset location> <x> <y> <z> [zoom]

Loads every tile within -radius micrometers of the focus point and lists them.

	lvv decode <mask file>[,<channel file>] ...

Decodes mask files, with their channel files when given, and prints the extents,
voxel counts and channel averages of each.  Files are decoded concurrently.

	lvv generate <dataset directory> <volume edge>

Writes a synthetic octree dataset of a sphere, useful for trying out the other
commands.  Use -compress to choose how tile files are stored.
*/
package main
