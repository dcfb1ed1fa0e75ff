// Package datasets loads simulated electron clouds and turns them into the
// continuous charge profiles consumed by the strip sampler.
//
// Layout and intended usage:
//
// Cloud
//   - Reads a whitespace separated "x y E" file (Garfield++ output, x and y
//     in micrometres) and rescales the coordinates by CoordinateScale.
//   - XProjection sums the deposited charge per distinct x and normalizes it
//     so that Σ density·bin = 1.
//
// Profiles
//   - SplineProfile interpolates a projection with a cubic spline.
//   - GaussianProfile is the analytic alternative, usually built from the
//     width returned by FitGaussian.
//
// Files are located with FindCloudFile, which falls back to the data/
// directories used by the repository layout.
package datasets
