/*
Package exposures persists astrodata containers into a store.

Each exposure is kept under its identifier as a JSON metadata document
plus one binary stream per image payload:

	<id>-info-NNNN   the metadata document, generation NNNN
	<id>-ext-NNNN    pixel stream NNNN, float64 little-endian

The metadata document records the primary header, and for every
extension its name, version, header, and either an inlined table or a
reference to a pixel stream along with the stream's length and MD5 and
SHA256 checksums. Mask and variance planes and extra attachments are
streams of their own. Stream and document numbers increase across
saves of the same exposure, so a save never writes over a key a
concurrent reader may have open; the document under the highest number
is the current one, and older generations are removed only once it is
in place.

Loading goes through the astrodata.DataProvider contract, so the
container built from a store is indistinguishable from one built any
other way.
*/
package exposures
