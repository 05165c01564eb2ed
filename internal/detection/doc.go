// Package detection finds card-shaped contours in binary rasters.
//
// It implements the two vector stages of the card detector:
//
//   - FindContours traces every outer border and hole border of a binary
//     raster (Suzuki-Abe border following) and returns them with their
//     containment forest.
//   - Classify and Evaluate decide, per contour, whether it is a card
//     candidate using area, shape and nesting rules.
//
// The geometry helpers (ContourArea, ArcLength, ApproxPolyDP, ConvexHull,
// MinAreaRect) are exported for callers that post-process contours.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Signed areas follow from that convention: a polygon that runs clockwise as
// seen on screen has positive SignedArea.
//
// # Contour Forest
//
// The hierarchy is an arena of ContourNode values indexed like the contour
// slice. Links to absent nodes hold None (-1). The forest is acyclic: a
// contour's parent is the border that immediately encloses it, so outer
// borders alternate with hole borders going down the tree.
//
// # Limitations
//
// Contours are traced at pixel resolution. Cards touching the frame edge or
// each other merge into one region, and glare that breaks a card's outline
// splits it; both typically fail the quadrilateral rule rather than produce
// a wrong quad.
package detection
