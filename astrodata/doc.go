/*

Package astrodata implements the in-memory container used to represent a
telescope exposure: one primary header plus an ordered list of named,
optionally versioned extensions. An extension holds its own header and a
payload, which is either an image (a pixel array) or a table. An image
extension may additionally carry a data-quality mask, a variance plane,
and other named payloads attached directly to it; attachments are not
extensions themselves and never consume version numbers.

Within one container the pair (name, version) is unique. Names come in
two flavors. Versioned names, such as SCI, VAR and DQ, may have many
numbered instances. Singleton names, such as MDF or an arbitrary
attached table, have at most one instance and no version number.

When an extension is appended with automatic numbering, its version is
the highest version already used by that name plus one. If the name is
new to the container, the seed is instead the highest version used by
any name. This keeps the numbering of a brand-new name in step with the
rest of the container, so that a later bulk merge cannot collide with
it. Merging a whole container renumbers each incoming name group
independently with the same rule, assigning consecutive versions in the
group's original order. Appends and merges either fully succeed or
leave the container untouched.

Slicing a container produces a view: a new container addressing a
subset of the same extensions. Pixel data mutated through a view is
visible through the original, but appending to or deleting from a view
does not change the original's extension list.

Containers are not safe for concurrent mutation. Callers must serialize
writes themselves.

*/
package astrodata
