package integrator

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/bvh"
	"github.com/gogpu/wavefront/compute"
	"github.com/gogpu/wavefront/scene"
)

// Host implementations of the integrator kernels. They follow the WGSL
// sources statement by statement so the host device renders the same
// image as a GPU, up to floating point rounding.

func init() {
	compute.RegisterHostKernel("reset_radiance", hostResetRadiance)
	compute.RegisterHostKernel("clear_counter", hostClearCounter)
	compute.RegisterHostKernel("increment_counter", hostIncrementCounter)
	compute.RegisterHostKernel("generate_rays", hostGenerateRays)
	compute.RegisterHostKernel("trace_bvh", hostTraceBVH)
	compute.RegisterHostKernel("shade_miss", hostShadeMiss)
	compute.RegisterHostKernel("shade_hits", hostShadeHits)
	compute.RegisterHostKernel("resolve_radiance", hostResolveRadiance)
}

const (
	hostEpsilon       = 1e-4
	hostMinThroughput = 1e-4
	hostRRBounce      = 3
	hostFar           = 3.0e38
	hostStackSize     = 64
	hostLightStream   = 0x10000
)

func f32(w uint32) float32 { return math.Float32frombits(w) }

func vec3At(f []float32, i uint32) mgl32.Vec3 {
	return mgl32.Vec3{f[i], f[i+1], f[i+2]}
}

func addVec3At(f []float32, i uint32, v mgl32.Vec3) {
	f[i] += v[0]
	f[i+1] += v[1]
	f[i+2] += v[2]
}

func setVec4At(f []float32, i uint32, v mgl32.Vec3, w float32) {
	f[i], f[i+1], f[i+2], f[i+3] = v[0], v[1], v[2], w
}

func mulVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func max3(v mgl32.Vec3) float32 {
	return math32.Max(v[0], math32.Max(v[1], v[2]))
}

func fract(x float32) float32 { return x - math32.Floor(x) }

// rng is the xorshift generator of the kernels.
type rng uint32

func seedFor(pixel, sample, stream uint32) rng {
	s := scene.WangHash(pixel*9781 + scene.WangHash(sample*6271+stream))
	if s == 0 {
		s = 1
	}
	return rng(s)
}

func (r *rng) float() float32 {
	x := uint32(*r)
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	*r = rng(x)
	return float32(x>>8) * (1.0 / 16777216.0)
}

func hostResetRadiance(a *compute.Args, id [3]uint32) {
	dims := a.Uint32s(argResetDims)
	if id[0] >= dims[0] || id[1] >= dims[1] {
		return
	}
	i := (id[1]*dims[0] + id[0]) * 4
	clear(a.Float32s(argResetRadiance)[i : i+4])
}

func hostClearCounter(a *compute.Args, _ [3]uint32) {
	a.AtomicStore(argCounter, 0, 0)
}

func hostIncrementCounter(a *compute.Args, _ [3]uint32) {
	a.AtomicAdd(argCounter, 0, 1)
}

// ray is the host view of a Ray record.
type ray struct {
	origin mgl32.Vec3
	tmin   float32
	dir    mgl32.Vec3
	tmax   float32
}

func loadRay(f []float32, i uint32) ray {
	o := i * (sizeofRay / 4)
	return ray{origin: vec3At(f, o), tmin: f[o+3], dir: vec3At(f, o+4), tmax: f[o+7]}
}

func storeRay(f []float32, i uint32, r ray) {
	o := i * (sizeofRay / 4)
	setVec4At(f, o, r.origin, r.tmin)
	setVec4At(f, o+4, r.dir, r.tmax)
}

func hostGenerateRays(a *compute.Args, id [3]uint32) {
	dims := a.Uint32s(argGenDims)
	n := dims[0] * dims[1]
	i := id[0]
	if i == 0 {
		a.AtomicStore(argGenRayCounter, 0, n)
	}
	if i >= n {
		return
	}

	r := seedFor(i, a.Uint32s(argGenSampleCounter)[0], 0)
	px := float32(i%dims[0]) + r.float()
	py := float32(i/dims[0]) + r.float()
	ndc := mgl32.Vec2{px/float32(dims[0])*2 - 1, 1 - py/float32(dims[1])*2}

	params := a.Vec4(argGenCameraParams)
	pos := a.Vec4(argGenCameraPosition)
	front := a.Vec4(argGenCameraFront)
	up := a.Vec4(argGenCameraUp)
	cam := Camera{
		Position: mgl32.Vec3{pos[0], pos[1], pos[2]},
		Front:    mgl32.Vec3{front[0], front[1], front[2]},
		Up:       mgl32.Vec3{up[0], up[1], up[2]},
		FOV:      params[0],
		Aspect:   params[1],
	}

	storeRay(a.Float32s(argGenRays), i, ray{origin: cam.Position, dir: cam.Ray(ndc), tmax: hostFar})
	a.Uint32s(argGenPixelIndices)[i] = i
	setVec4At(a.Float32s(argGenThroughputs), i*4, mgl32.Vec3{1, 1, 1}, 0)
	a.Float32s(argGenRadiance)[i*4+3]++
}

// hit is the host view of a Hit record.
type hit struct {
	prim    uint32
	t, u, v float32
}

// trace walks the linear BVH stored in node and triangle words.
func trace(rts, nodes []uint32, nodeCount uint32, origin, dir mgl32.Vec3, tmin, tmax float32, anyHit bool) hit {
	h := hit{prim: missPrim, t: tmax}
	if nodeCount == 0 {
		return h
	}
	inv := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
	var stack [hostStackSize]uint32
	sp := 1
	for sp > 0 {
		sp--
		idx := stack[sp]
		n := nodes[idx*8 : idx*8+8]
		lo := mgl32.Vec3{f32(n[0]), f32(n[1]), f32(n[2])}
		hi := mgl32.Vec3{f32(n[4]), f32(n[5]), f32(n[6])}
		if !slabs(lo, hi, origin, inv, tmin, tmax) {
			continue
		}
		if count := n[7] & 0xFFFF; count > 0 {
			for i := n[3]; i < n[3]+count; i++ {
				w := rts[i*12 : i*12+12]
				tri := bvh.RTTriangle{
					V0:   mgl32.Vec3{f32(w[0]), f32(w[1]), f32(w[2])},
					E1:   mgl32.Vec3{f32(w[4]), f32(w[5]), f32(w[6])},
					E2:   mgl32.Vec3{f32(w[8]), f32(w[9]), f32(w[10])},
					Prim: w[3],
				}
				d, u, v, ok := bvh.MollerTrumbore(&tri, origin, dir)
				if ok && d > tmin && d < tmax {
					tmax = d
					h = hit{prim: tri.Prim, t: d, u: u, v: v}
					if anyHit {
						return h
					}
				}
			}
			continue
		}
		if sp+2 > hostStackSize {
			continue
		}
		stack[sp] = n[3]
		stack[sp+1] = idx + 1
		sp += 2
	}
	return h
}

func slabs(lo, hi, origin, inv mgl32.Vec3, tmin, tmax float32) bool {
	near, far := tmin, tmax
	for a := range 3 {
		t0 := (lo[a] - origin[a]) * inv[a]
		t1 := (hi[a] - origin[a]) * inv[a]
		near = math32.Max(near, math32.Min(t0, t1))
		far = math32.Min(far, math32.Max(t0, t1))
	}
	return near <= far
}

func hostTraceBVH(a *compute.Args, id [3]uint32) {
	i := id[0]
	if i >= a.AtomicLoad(argTraceRayCounter, 0) {
		return
	}
	r := loadRay(a.Float32s(argTraceRays), i)
	h := trace(a.Uint32s(argTraceRTTriangles), a.Uint32s(argTraceNodes), a.Uint32s(argTraceParams)[0],
		r.origin, r.dir, r.tmin, r.tmax, false)
	hits := a.Uint32s(argTraceHits)
	hits[i*4] = h.prim
	hits[i*4+1] = math.Float32bits(h.t)
	hits[i*4+2] = math.Float32bits(h.u)
	hits[i*4+3] = math.Float32bits(h.v)
}

func loadHit(w []uint32, i uint32) hit {
	return hit{prim: w[i*4], t: f32(w[i*4+1]), u: f32(w[i*4+2]), v: f32(w[i*4+3])}
}

func hostShadeMiss(a *compute.Args, id [3]uint32) {
	i := id[0]
	if i >= a.AtomicLoad(argMissRayCounter, 0) || a.Uint32s(argMissHits)[i*4] != missPrim {
		return
	}
	pixel := a.Uint32s(argMissPixelIndices)[i]
	dir := loadRay(a.Float32s(argMissRays), i).dir

	var env mgl32.Vec3
	info := a.Uint32s(argMissSceneInfo)
	switch {
	case a.Defined(WhiteFurnaceDefine):
		env = mgl32.Vec3{1, 1, 1}
	case info[2] != 0 && info[3] != 0:
		x, y := scene.EnvTexel(dir, int(info[2]), int(info[3]))
		env = vec3At(a.Float32s(argMissEnv), uint32(y*int(info[2])+x)*4)
	}

	tp := vec3At(a.Float32s(argMissThroughputs), pixel*4)
	addVec3At(a.Float32s(argMissRadiance), pixel*4, mulVec3(tp, env))
}

// surface holds the words of the scene buffers bound to shade_hits.
type surface struct {
	triangles   []uint32
	materials   []uint32
	lights      []uint32
	rts         []uint32
	nodes       []uint32
	textures    []uint32
	textureData []uint32
	emissive    []uint32
	lightCount  uint32
	nodeCount   uint32
}

func (s *surface) vertex(prim uint32, k int) (pos, normal mgl32.Vec3, uv mgl32.Vec2) {
	w := s.triangles[prim*28+uint32(k)*8 : prim*28+uint32(k)*8+8]
	return mgl32.Vec3{f32(w[0]), f32(w[1]), f32(w[2])},
		mgl32.Vec3{f32(w[4]), f32(w[5]), f32(w[6])},
		mgl32.Vec2{f32(w[3]), f32(w[7])}
}

func (s *surface) material(prim uint32) scene.Material {
	m := s.triangles[prim*28+24]
	mw := s.materials[m*5 : m*5+5]
	return scene.Material{Albedo: mw[0], Specular: mw[1], Emission: mw[2], RoughnessMetalness: mw[3], IorEmissionTransparency: mw[4]}
}

func (s *surface) emissionAt(mat scene.Material, uv mgl32.Vec2) mgl32.Vec3 {
	e := mat.EmissionColor()
	_, tex, _, _ := scene.UnpackIorEmissionTransparency(mat.IorEmissionTransparency)
	if tex != scene.NoTexture {
		e = mulVec3(e, s.linearTexture(tex, uv))
	}
	return e
}

// emissiveLight takes one area sample on a uniformly chosen emissive
// triangle.
func (s *surface) emissiveLight(prim uint32, p, ng, ns mgl32.Vec3, rnd *rng) mgl32.Vec3 {
	count := uint32(len(s.emissive))
	if count == 0 {
		return mgl32.Vec3{}
	}
	k := min(uint32(rnd.float()*float32(count)), count-1)
	su := math32.Sqrt(rnd.float())
	b1 := rnd.float() * su
	b0 := 1 - su
	b2 := 1 - b0 - b1
	lt := s.emissive[k]
	if lt == prim {
		return mgl32.Vec3{}
	}
	p0, _, uv0 := s.vertex(lt, 0)
	p1, _, uv1 := s.vertex(lt, 1)
	p2, _, uv2 := s.vertex(lt, 2)
	q := p0.Mul(b0).Add(p1.Mul(b1)).Add(p2.Mul(b2))
	c := p1.Sub(p0).Cross(p2.Sub(p0))
	area := 0.5 * c.Len()
	to := q.Sub(p)
	d2 := to.Dot(to)
	if area <= 0 || d2 < 1e-12 {
		return mgl32.Vec3{}
	}
	dist := math32.Sqrt(d2)
	wi := to.Mul(1 / dist)
	cosTheta := ns.Dot(wi)
	if cosTheta <= 0 || ng.Dot(wi) <= 0 {
		return mgl32.Vec3{}
	}
	cosLight := math32.Abs(c.Mul(1 / (2 * area)).Dot(wi))
	occ := trace(s.rts, s.nodes, s.nodeCount, p.Add(ng.Mul(hostEpsilon)), wi, 0, dist*(1-1e-3), true)
	if occ.prim != missPrim {
		return mgl32.Vec3{}
	}
	uv := uv0.Mul(b0).Add(uv1.Mul(b1)).Add(uv2.Mul(b2))
	return s.emissionAt(s.material(lt), uv).Mul(cosTheta * cosLight * area * float32(count) / d2)
}

func (s *surface) sampleTexture(index uint32, uv mgl32.Vec2) [4]float32 {
	t := s.textures[index*4 : index*4+4]
	w, h, start := t[0], t[1], t[2]
	x := min(uint32(fract(uv[0])*float32(w)), w-1)
	y := min(uint32((1-fract(uv[1]))*float32(h)), h-1)
	return scene.UnpackRGBA8(s.textureData[start+y*w+x])
}

func (s *surface) scalarMap(value float32, index uint8, uv mgl32.Vec2) float32 {
	if index == scene.NoTexture {
		return value
	}
	return s.sampleTexture(uint32(index), uv)[0]
}

func (s *surface) linearTexture(index uint8, uv mgl32.Vec2) mgl32.Vec3 {
	c := s.sampleTexture(uint32(index), uv)
	return mgl32.Vec3{
		math32.Pow(c[0], scene.Gamma),
		math32.Pow(c[1], scene.Gamma),
		math32.Pow(c[2], scene.Gamma),
	}
}

func (s *surface) directLight(p, ng, ns mgl32.Vec3) mgl32.Vec3 {
	var sum mgl32.Vec3
	for l := range s.lightCount {
		w := s.lights[l*8 : l*8+8]
		vector := mgl32.Vec3{f32(w[0]), f32(w[1]), f32(w[2])}
		radiance := mgl32.Vec3{f32(w[4]), f32(w[5]), f32(w[6])}
		var wi, e mgl32.Vec3
		var dist float32
		if scene.LightType(w[3]) == scene.LightPoint {
			to := vector.Sub(p)
			d2 := to.Dot(to)
			if d2 < 1e-12 {
				continue
			}
			dist = math32.Sqrt(d2)
			wi = to.Mul(1 / dist)
			e = radiance.Mul(1 / d2)
		} else {
			wi = vector.Mul(-1)
			e = radiance
			dist = hostFar
		}
		cosTheta := ns.Dot(wi)
		if cosTheta <= 0 || ng.Dot(wi) <= 0 {
			continue
		}
		occ := trace(s.rts, s.nodes, s.nodeCount, p.Add(ng.Mul(hostEpsilon)), wi, 0, dist-hostEpsilon, true)
		if occ.prim != missPrim {
			continue
		}
		sum = sum.Add(e.Mul(cosTheta))
	}
	return sum
}

func hostShadeHits(a *compute.Args, id [3]uint32) {
	i := id[0]
	if i >= a.AtomicLoad(argHitInCounter, 0) {
		return
	}
	h := loadHit(a.Uint32s(argHitHits), i)
	if h.prim == missPrim {
		return
	}
	params := a.Uint32s(argHitParams)
	bounce, maxBounces := params[0], params[1]
	info := a.Uint32s(argHitSceneInfo)
	s := &surface{
		triangles:   a.Uint32s(argHitTriangles),
		materials:   a.Uint32s(argHitMaterials),
		lights:      a.Uint32s(argHitLights),
		rts:         a.Uint32s(argHitRTTriangles),
		nodes:       a.Uint32s(argHitNodes),
		textures:    a.Uint32s(argHitTextures),
		textureData: a.Uint32s(argHitTextureData),
		emissive:    a.Uint32s(argHitEmissive)[:info[0]],
		lightCount:  info[1],
		nodeCount:   params[2],
	}

	pixel := a.Uint32s(argHitInPixelIndices)[i]
	r := loadRay(a.Float32s(argHitInRays), i)
	p0, n0, uv0 := s.vertex(h.prim, 0)
	p1, n1, uv1 := s.vertex(h.prim, 1)
	p2, n2, uv2 := s.vertex(h.prim, 2)
	mat := s.material(h.prim)
	w := 1 - h.u - h.v

	p := r.origin.Add(r.dir.Mul(h.t))
	ng := p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
	front := ng.Dot(r.dir) < 0
	if !front {
		ng = ng.Mul(-1)
	}
	ns := n0.Mul(w).Add(n1.Mul(h.u)).Add(n2.Mul(h.v))
	if ns.Dot(ns) < 1e-12 {
		ns = ng
	}
	ns = ns.Normalize()
	if ns.Dot(ng) < 0 {
		ns = ns.Mul(-1)
	}
	uv := uv0.Mul(w).Add(uv1.Mul(h.u)).Add(uv2.Mul(h.v))

	ar, ag, ab, albedoTex := scene.UnpackAlbedo(mat.Albedo)
	albedo := mgl32.Vec3{ar, ag, ab}
	if albedoTex != scene.NoTexture {
		albedo = mulVec3(albedo, s.linearTexture(albedoTex, uv))
	}
	emission := s.emissionAt(mat, uv)
	ior, _, transparency, transparencyTex := scene.UnpackIorEmissionTransparency(mat.IorEmissionTransparency)
	roughness, roughnessTex, metalness, metalnessTex := scene.UnpackRoughnessMetalness(mat.RoughnessMetalness)
	roughness = s.scalarMap(roughness, roughnessTex, uv)
	metalness = s.scalarMap(metalness, metalnessTex, uv)
	transparency = s.scalarMap(transparency, transparencyTex, uv)
	if ior < 1 {
		ior = 1.5
	}

	whiteFurnace := a.Defined(WhiteFurnaceDefine)
	if whiteFurnace {
		albedo = mgl32.Vec3{1, 1, 1}
		emission = mgl32.Vec3{}
	}

	tps := a.Float32s(argHitThroughputs)
	throughput := vec3At(tps, pixel*4)
	if tps[pixel*4+3] > 0.5 {
		emission = mgl32.Vec3{}
	}
	contribution := mulVec3(throughput, emission)
	if !whiteFurnace {
		if dw := (1 - metalness) * (1 - transparency); dw > 0 {
			lightRnd := seedFor(pixel, a.Uint32s(argHitSampleCounter)[0], hostLightStream+bounce)
			light := s.directLight(p, ng, ns).Add(s.emissiveLight(h.prim, p, ng, ns, &lightRnd))
			direct := mulVec3(mulVec3(throughput, albedo.Mul(1/math32.Pi)), light)
			contribution = contribution.Add(direct.Mul(dw))
		}
	}
	addVec3At(a.Float32s(argHitRadiance), pixel*4, contribution)

	if bounce+1 >= maxBounces {
		return
	}

	rnd := seedFor(pixel, a.Uint32s(argHitSampleCounter)[0], bounce+1)
	var dir mgl32.Vec3
	var diffuse float32
	switch {
	case rnd.float() < transparency:
		eta := ior
		if front {
			eta = 1 / ior
		}
		cosI := -r.dir.Dot(ns)
		f0 := ((1 - ior) / (1 + ior)) * ((1 - ior) / (1 + ior))
		fresnel := f0 + (1-f0)*math32.Pow(1-math32.Max(0, math32.Min(cosI, 1)), 5)
		sin2T := eta * eta * (1 - cosI*cosI)
		if sin2T > 1 || rnd.float() < fresnel {
			dir = r.dir.Add(ns.Mul(2 * cosI))
		} else {
			dir = r.dir.Mul(eta).Add(ns.Mul(eta*cosI - math32.Sqrt(1-sin2T)))
		}
	case rnd.float() < metalness:
		refl := scene.Reflect(r.dir.Mul(-1), ns)
		jx, jy, jz := rnd.float(), rnd.float(), rnd.float()
		jitter := mgl32.Vec3{jx*2 - 1, jy*2 - 1, jz*2 - 1}
		dir = refl.Add(jitter.Mul(roughness))
		if dir.Dot(ng) <= 0 {
			return
		}
		throughput = mulVec3(throughput, albedo)
	default:
		u1 := rnd.float()
		u2 := rnd.float()
		rad := math32.Sqrt(u1)
		phi := 2 * math32.Pi * u2
		local := mgl32.Vec3{rad * math32.Cos(phi), rad * math32.Sin(phi), math32.Sqrt(math32.Max(0, 1-u1))}
		dir = scene.TangentToWorld(local, ns)
		if dir.Dot(ng) <= 0 {
			return
		}
		throughput = mulVec3(throughput, albedo)
		if !whiteFurnace {
			diffuse = 1
		}
	}
	dir = dir.Normalize()

	if bounce >= hostRRBounce {
		survive := math32.Max(0.05, math32.Min(max3(throughput), 1))
		if rnd.float() > survive {
			return
		}
		throughput = throughput.Mul(1 / survive)
	}
	if max3(throughput) < hostMinThroughput {
		return
	}

	side := float32(-1)
	if dir.Dot(ng) > 0 {
		side = 1
	}
	slot := a.AtomicAdd(argHitOutCounter, 0, 1)
	storeRay(a.Float32s(argHitOutRays), slot, ray{origin: p.Add(ng.Mul(hostEpsilon * side)), dir: dir, tmax: hostFar})
	a.Uint32s(argHitOutPixelIndices)[slot] = pixel
	setVec4At(tps, pixel*4, throughput, diffuse)
}

func hostResolveRadiance(a *compute.Args, id [3]uint32) {
	dims := a.Uint32s(argResolveDims)
	if id[0] >= dims[0] || id[1] >= dims[1] {
		return
	}
	i := (id[1]*dims[0] + id[0]) * 4
	params := a.Vec4(argResolveParams)
	count := float32(max(a.AtomicLoad(argResolveSampleCounter, 0), 1))
	c := vec3At(a.Float32s(argResolveRadiance), i).Mul(params[1] / count)
	if ToneMap(params[0]) != ToneMapRaw {
		c = mgl32.Vec3{c[0] / (1 + c[0]), c[1] / (1 + c[1]), c[2] / (1 + c[2])}
	}
	setVec4At(a.Float32s(argResolveOutput), i, c, 1)
}
