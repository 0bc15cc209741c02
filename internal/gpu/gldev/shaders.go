package gldev

// MaxJoints is the joint array size of the built-in skinning shader.
const MaxJoints = 64

const shaderHeader = "#version 410 core\n"

const vertexShader = `
layout(std140) uniform Primitive {
	mat4 uTransform;
	mat4 uPrevTransform;
	vec4 uBaseColor;
	uvec4 uIDs;
};

#ifdef FEATURE_JOINTS
layout(std140) uniform Joints {
	mat4 uJoints[64];
};
#endif

uniform mat4 uViewProj;

layout(location = ATTR_POSITION) in vec3 aPosition;
#ifdef ATTR_NORMAL
layout(location = ATTR_NORMAL) in vec3 aNormal;
#endif
#ifdef ATTR_TEXCOORD
layout(location = ATTR_TEXCOORD) in vec2 aTexCoord;
#endif
#ifdef ATTR_COLOR
layout(location = ATTR_COLOR) in vec4 aColor;
#endif
#if defined(FEATURE_JOINTS) && defined(ATTR_JOINTS) && defined(ATTR_WEIGHTS)
#define SKINNED
layout(location = ATTR_JOINTS) in ivec4 aJoints;
layout(location = ATTR_WEIGHTS) in vec4 aWeights;
#endif

out vec3 vNormal;
out vec2 vTexCoord;
out vec4 vColor;

void main() {
	vec4 pos = vec4(aPosition, 1.0);
	vec3 normal = vec3(0.0, 0.0, 1.0);
#ifdef ATTR_NORMAL
	normal = aNormal;
#endif
#ifdef SKINNED
	mat4 skin = aWeights.x * uJoints[aJoints.x] +
		aWeights.y * uJoints[aJoints.y] +
		aWeights.z * uJoints[aJoints.z] +
		aWeights.w * uJoints[aJoints.w];
	pos = skin * pos;
	normal = mat3(skin) * normal;
#endif
	vNormal = mat3(transpose(inverse(uTransform))) * normal;
	vTexCoord = vec2(0.0);
#ifdef ATTR_TEXCOORD
	vTexCoord = aTexCoord;
#endif
	vColor = vec4(1.0);
#ifdef ATTR_COLOR
	vColor = aColor;
#endif
	gl_PointSize = 4.0;
	gl_Position = uViewProj * uTransform * pos;
}
`

const fragmentShader = `
layout(std140) uniform Primitive {
	mat4 uTransform;
	mat4 uPrevTransform;
	vec4 uBaseColor;
	uvec4 uIDs;
};

uniform sampler2D uBaseColorTex;
uniform sampler2D uNormalTex;

in vec3 vNormal;
in vec2 vTexCoord;
in vec4 vColor;

out vec4 fragColor;

const vec3 lightDir = vec3(0.3, 0.8, 0.5);

void main() {
	vec4 color = uBaseColor;
#ifdef FEATURE_VERTEX_COLOR
	color *= vColor;
#endif
#ifdef FEATURE_BASE_COLOR_TEX
	color *= texture(uBaseColorTex, vTexCoord);
#endif
#ifdef ALPHA_MASK
	if (color.a < 0.5) {
		discard;
	}
#endif
	vec3 n = normalize(vNormal);
	float ndl = max(dot(n, normalize(lightDir)), 0.0);
	color.rgb *= 0.25 + 0.75 * ndl;

#if defined(DEBUG_NORMALS)
	color = vec4(n * 0.5 + 0.5, 1.0);
#elif defined(DEBUG_TEXCOORDS)
	color = vec4(fract(vTexCoord), 0.0, 1.0);
#elif defined(DEBUG_VERTEX_COLOR)
	color = vColor;
#endif

	if ((uIDs.w & 1u) != 0u) {
		color.rgb = mix(color.rgb, vec3(1.0, 0.6, 0.1), 0.4);
	}
#ifdef ALPHA_BLEND
	color.rgb *= color.a;
#endif
	fragColor = color;
}
`
