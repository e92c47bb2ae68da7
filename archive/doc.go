// Package archive implements the on-disk item store for one collection.
// Layout: <root>/<id>/crumb.json for metadata, <root>/<id>/<branch>/<file>
// for branch files. An item exists once its crumb.json marker does.
package archive
